package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"authcore/pkg/errors"
	"authcore/pkg/logger"
)

const (
	defaultKeyLifetime = time.Hour
	minKeyLifetime     = time.Minute
)

// keyCache holds the issuer's published signing keys. It is read-mostly
// shared state: verifications read a snapshot under RLock and are never
// blocked by an in-flight refresh, which runs under a separate mutex and
// swaps the map in one write.
type keyCache struct {
	jwksURI    string
	httpClient *http.Client
	logger     *logger.Logger

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	expiresAt  time.Time
	generation uint64

	refreshMu sync.Mutex
}

// jwksDocument is the issuer's published key set
type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// jwk is a single RSA public key in JWK form
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newKeyCache(jwksURI string, httpClient *http.Client, log *logger.Logger) *keyCache {
	return &keyCache{
		jwksURI:    jwksURI,
		httpClient: httpClient,
		logger:     log,
		keys:       map[string]*rsa.PublicKey{},
	}
}

// Key resolves a signing key by its identifier. A key missing from a
// stale or cold cache triggers exactly one forced refresh before the
// lookup gives up.
func (c *keyCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, ok, gen := c.lookup(kid)
	if ok {
		return key, nil
	}

	if err := c.refresh(ctx, gen); err != nil {
		return nil, err
	}

	if key, ok, _ := c.lookup(kid); ok {
		return key, nil
	}
	return nil, errors.New(errors.ErrorTypeInvalidSignature, fmt.Sprintf("no signing key found for kid %q", kid))
}

// lookup returns the key if it is cached and the cache is still fresh,
// plus the generation observed so a miss can request a forced refresh.
func (c *keyCache) lookup(kid string) (*rsa.PublicKey, bool, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if time.Now().After(c.expiresAt) {
		return nil, false, c.generation
	}
	key, ok := c.keys[kid]
	return key, ok, c.generation
}

// refresh fetches the key set from the issuer. Concurrent callers are
// serialized; a caller that waited behind a refresh started after its
// lookup reuses that result instead of fetching again, so one unknown
// kid costs at most one forced fetch.
func (c *keyCache) refresh(ctx context.Context, seenGeneration uint64) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.RLock()
	refreshed := c.generation != seenGeneration
	c.mu.RUnlock()
	if refreshed {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURI, nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeInternal, "failed to create JWKS request", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeUpstreamUnavailable, "failed to fetch signing keys", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrorTypeUpstreamUnavailable, fmt.Sprintf("JWKS endpoint returned status %d", resp.StatusCode))
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return errors.Wrap(errors.ErrorTypeUpstreamUnavailable, "failed to decode JWKS response", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			c.logger.WithError(err).WithField("kid", k.Kid).Warn("Skipping unparsable signing key")
			continue
		}
		keys[k.Kid] = pub
	}

	lifetime := cacheLifetime(resp.Header.Get("Cache-Control"))

	c.mu.Lock()
	c.keys = keys
	c.expiresAt = time.Now().Add(lifetime)
	c.generation++
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"keys":     len(keys),
		"lifetime": lifetime.String(),
		"duration": time.Since(start).String(),
	}).Debug("Signing key set refreshed")

	return nil
}

// parseRSAKey builds an rsa.PublicKey from base64url modulus and exponent
func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	// Real-world exponents fit in 4 bytes; anything longer would wrap
	// the accumulator below
	if len(eBytes) > 4 {
		return nil, fmt.Errorf("exponent is %d bytes, too large", len(eBytes))
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, fmt.Errorf("invalid exponent value %d", e)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// cacheLifetime honours the issuer's stated max-age, clamped to a sane floor
func cacheLifetime(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
		if err != nil {
			break
		}
		lifetime := time.Duration(seconds) * time.Second
		if lifetime < minKeyLifetime {
			return minKeyLifetime
		}
		return lifetime
	}
	return defaultKeyLifetime
}
