package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"authcore/pkg/errors"
	"authcore/pkg/logger"
)

// Provider holds the endpoints discovered from an OIDC issuer and the
// shared signing-key cache used to verify its ID tokens.
type Provider struct {
	issuer           string
	authorizationURL string
	tokenURL         string
	userinfoURL      string
	keys             *keyCache
	logger           *logger.Logger
}

// discoveryDocument is the subset of the issuer's well-known metadata we use
type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// NewProvider fetches the issuer's discovery document and prepares the
// signing-key cache. Called once at startup; a failure here is fatal.
func NewProvider(ctx context.Context, issuerURL string, log *logger.Logger) (*Provider, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}

	wellKnown := issuerURL + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if doc.Issuer != issuerURL {
		return nil, fmt.Errorf("discovery issuer %q does not match configured issuer %q", doc.Issuer, issuerURL)
	}
	if doc.JWKSURI == "" || doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return nil, fmt.Errorf("discovery document is missing required endpoints")
	}

	// The code and client secret travel to these endpoints; a plaintext
	// one is fatal at startup, same as a plaintext redirect URL
	if err := requireHTTPS("authorization_endpoint", doc.AuthorizationEndpoint); err != nil {
		return nil, err
	}
	if err := requireHTTPS("token_endpoint", doc.TokenEndpoint); err != nil {
		return nil, err
	}
	if err := requireHTTPS("jwks_uri", doc.JWKSURI); err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"issuer":   doc.Issuer,
		"jwks_uri": doc.JWKSURI,
	}).Info("OIDC provider discovered")

	return &Provider{
		issuer:           doc.Issuer,
		authorizationURL: doc.AuthorizationEndpoint,
		tokenURL:         doc.TokenEndpoint,
		userinfoURL:      doc.UserinfoEndpoint,
		keys:             newKeyCache(doc.JWKSURI, httpClient, log),
		logger:           log,
	}, nil
}

// requireHTTPS rejects plaintext discovered endpoints. Loopback hosts
// are exempt so the flow can run against a local fake provider during
// development.
func requireHTTPS(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeConfiguration, fmt.Sprintf("discovered %s is not a valid URL", name), err)
	}
	if u.Scheme == "https" {
		return nil
	}
	if u.Scheme == "http" && (u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1") {
		return nil
	}
	return errors.New(errors.ErrorTypeConfiguration, fmt.Sprintf("discovered %s must use https", name))
}

// Issuer returns the discovered issuer identifier
func (p *Provider) Issuer() string {
	return p.issuer
}

// Endpoint returns the OAuth2 endpoints for the authorization code flow
func (p *Provider) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  p.authorizationURL,
		TokenURL: p.tokenURL,
	}
}

// UserinfoEndpoint returns the userinfo URL, or "" if the issuer has none
func (p *Provider) UserinfoEndpoint() string {
	return p.userinfoURL
}

// Verifier builds an ID token verifier bound to this provider's key set
func (p *Provider) Verifier(clientID string, clockSkew time.Duration) *Verifier {
	return &Verifier{
		keys:      p.keys,
		issuer:    p.issuer,
		clientID:  clientID,
		clockSkew: clockSkew,
		logger:    p.logger,
	}
}
