package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "authcore/pkg/errors"
	"authcore/pkg/logger"
)

const (
	testClientID = "client-123.apps.example"
	testNonce    = "nonce-abc"
)

// fakeIssuer is a minimal OIDC provider for tests: discovery document,
// JWKS endpoint, and an RSA key to sign tokens with.
type fakeIssuer struct {
	server    *httptest.Server
	key       *rsa.PrivateKey
	kid       string
	jwksHits  atomic.Int64
	cacheCtrl string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fi := &fakeIssuer{key: key, kid: "key-1", cacheCtrl: "max-age=3600"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 fi.server.URL,
			"authorization_endpoint": fi.server.URL + "/authorize",
			"token_endpoint":         fi.server.URL + "/token",
			"jwks_uri":               fi.server.URL + "/jwks",
			"userinfo_endpoint":      fi.server.URL + "/userinfo",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		fi.jwksHits.Add(1)
		w.Header().Set("Cache-Control", fi.cacheCtrl)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": fi.kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(fi.key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(fi.key.E)).Bytes()),
			}},
		})
	})

	fi.server = httptest.NewServer(mux)
	t.Cleanup(fi.server.Close)
	return fi
}

// sign issues an ID token with sensible defaults, letting tests override
// individual claims
func (fi *fakeIssuer) sign(t *testing.T, overrides map[string]interface{}) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss":            fi.server.URL,
		"aud":            testClientID,
		"sub":            "google-001",
		"nonce":          testNonce,
		"email":          "a@example.com",
		"email_verified": true,
		"given_name":     "Ada",
		"family_name":    "Lovelace",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = fi.kid

	signed, err := token.SignedString(fi.key)
	require.NoError(t, err)
	return signed
}

func newTestVerifier(t *testing.T, fi *fakeIssuer) *Verifier {
	t.Helper()

	log := &logger.Logger{Logger: zap.NewNop()}
	provider, err := NewProvider(context.Background(), fi.server.URL, log)
	require.NoError(t, err)

	return provider.Verifier(testClientID, 5*time.Minute)
}

func TestVerify(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)
	ctx := context.Background()

	raw := fi.sign(t, nil)

	claims, err := v.Verify(ctx, raw, testNonce)
	require.NoError(t, err)

	assert.Equal(t, fi.server.URL, claims.Issuer)
	assert.Equal(t, "google-001", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "Ada", claims.GivenName)
	assert.Equal(t, "Lovelace", claims.FamilyName)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestVerifyRejections(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)
	ctx := context.Background()

	tests := []struct {
		name      string
		overrides map[string]interface{}
		nonce     string
		wantType  apperrors.ErrorType
	}{
		{
			name:      "Wrong issuer",
			overrides: map[string]interface{}{"iss": "https://attacker.example"},
			nonce:     testNonce,
			wantType:  apperrors.ErrorTypeClaimValidation,
		},
		{
			name:      "Wrong audience",
			overrides: map[string]interface{}{"aud": "other-client"},
			nonce:     testNonce,
			wantType:  apperrors.ErrorTypeClaimValidation,
		},
		{
			name:      "Expired token",
			overrides: map[string]interface{}{"exp": time.Now().Add(-time.Hour).Unix()},
			nonce:     testNonce,
			wantType:  apperrors.ErrorTypeClaimValidation,
		},
		{
			name:      "Issued in the future",
			overrides: map[string]interface{}{"iat": time.Now().Add(time.Hour).Unix()},
			nonce:     testNonce,
			wantType:  apperrors.ErrorTypeClaimValidation,
		},
		{
			name:      "No expiry",
			overrides: map[string]interface{}{"exp": nil},
			nonce:     testNonce,
			wantType:  apperrors.ErrorTypeClaimValidation,
		},
		{
			name:      "Nonce mismatch",
			overrides: nil,
			nonce:     "a-different-nonce",
			wantType:  apperrors.ErrorTypeNonceMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := fi.sign(t, tt.overrides)
			_, err := v.Verify(ctx, raw, tt.nonce)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, apperrors.TypeOf(err))
		})
	}
}

func TestVerifyExpiryWithinSkew(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)

	// Expired one minute ago but within the five-minute tolerance
	raw := fi.sign(t, map[string]interface{}{"exp": time.Now().Add(-time.Minute).Unix()})

	_, err := v.Verify(context.Background(), raw, testNonce)
	assert.NoError(t, err)
}

func TestVerifyMalformedToken(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{name: "Two segments", token: "header.payload"},
		{name: "Four segments", token: "a.b.c.d"},
		{name: "Empty token", token: ""},
		{name: "Garbage segments", token: "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token, testNonce)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorTypeMalformedToken, apperrors.TypeOf(err))
		})
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)

	raw := fi.sign(t, nil)

	// Flip one byte in the signature segment
	parts := strings.Split(raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err := v.Verify(context.Background(), tampered, testNonce)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeInvalidSignature, apperrors.TypeOf(err))
}

func TestVerifyForeignKey(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)

	// Token signed by a key the issuer never published, same kid
	foreign, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"iss":   fi.server.URL,
		"aud":   testClientID,
		"sub":   "google-001",
		"nonce": testNonce,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = fi.kid
	raw, err := token.SignedString(foreign)
	require.NoError(t, err)

	_, verifyErr := v.Verify(context.Background(), raw, testNonce)
	require.Error(t, verifyErr)
	assert.Equal(t, apperrors.ErrorTypeInvalidSignature, apperrors.TypeOf(verifyErr))
}

func TestVerifyKeyRotation(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)
	ctx := context.Background()

	// Prime the cache with the old key
	_, err := v.Verify(ctx, fi.sign(t, nil), testNonce)
	require.NoError(t, err)
	hitsBefore := fi.jwksHits.Load()

	// Rotate: new key under a new kid, while the cache is still fresh
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fi.key = newKey
	fi.kid = "key-2"

	// The unknown kid must force exactly one refresh and then verify
	_, err = v.Verify(ctx, fi.sign(t, nil), testNonce)
	require.NoError(t, err)
	assert.Equal(t, hitsBefore+1, fi.jwksHits.Load())
}

func TestVerifyUnknownKidRefreshesOnce(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)
	ctx := context.Background()

	// Sign with a kid the issuer will never publish
	realKid := fi.kid
	fi.kid = "ghost-key"
	raw := fi.sign(t, nil)
	fi.kid = realKid

	hitsBefore := fi.jwksHits.Load()
	_, err := v.Verify(ctx, raw, testNonce)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeInvalidSignature, apperrors.TypeOf(err))

	// Exactly one forced refresh before giving up
	assert.Equal(t, hitsBefore+1, fi.jwksHits.Load())
}

func TestVerifyReturnsDomainClaims(t *testing.T) {
	fi := newFakeIssuer(t)
	v := newTestVerifier(t, fi)

	raw := fi.sign(t, map[string]interface{}{
		"name":    "Ada Lovelace",
		"picture": "https://lh3.example.com/photo.jpg",
	})

	claims, err := v.Verify(context.Background(), raw, testNonce)
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", claims.DisplayName)
	assert.Equal(t, "https://lh3.example.com/photo.jpg", claims.PictureURL)
}
