package oidc

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authcore/internal/domain"
	"authcore/pkg/errors"
	"authcore/pkg/logger"
)

// Verifier validates ID tokens against the issuer's published signing
// keys. Every failure here is terminal for the login attempt; nothing
// is retried automatically.
type Verifier struct {
	keys      *keyCache
	issuer    string
	clientID  string
	clockSkew time.Duration
	logger    *logger.Logger
}

// idTokenClaims is the claim set we read from a verified ID token
type idTokenClaims struct {
	jwt.RegisteredClaims
	Nonce         string `json:"nonce"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify checks structure, signature, standard claims, and the nonce
// binding of a raw ID token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, rawIDToken string, expectedNonce string) (*domain.RawIdentityClaims, error) {
	if strings.Count(rawIDToken, ".") != 2 {
		return nil, errors.New(errors.ErrorTypeMalformedToken, "ID token is not a three-segment JWT")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		// Claim checks run below so each violation maps to its own error type
		jwt.WithoutClaimsValidation(),
	)

	claims := &idTokenClaims{}
	token, err := parser.ParseWithClaims(rawIDToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New(errors.ErrorTypeInvalidSignature, "ID token header has no kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, v.classifyParseError(err)
	}
	if !token.Valid {
		return nil, securityFail(v.logger, errors.New(errors.ErrorTypeInvalidSignature, "ID token signature is invalid"))
	}

	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}

	if claims.Nonce != expectedNonce {
		// Possible replay or CSRF; logged as a security event, never retried
		return nil, securityFail(v.logger, errors.New(errors.ErrorTypeNonceMismatch, "ID token nonce does not match login attempt"))
	}

	raw := &domain.RawIdentityClaims{
		Issuer:        claims.Issuer,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		DisplayName:   claims.Name,
		PictureURL:    claims.Picture,
	}
	if claims.IssuedAt != nil {
		raw.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		raw.ExpiresAt = claims.ExpiresAt.Time
	}

	v.logger.WithFields(map[string]interface{}{
		"issuer":  raw.Issuer,
		"subject": raw.Subject,
	}).Debug("ID token verified")

	return raw, nil
}

// validateClaims enforces issuer, audience, and timestamp constraints
func (v *Verifier) validateClaims(claims *idTokenClaims) error {
	now := time.Now()

	if claims.Issuer != v.issuer {
		return errors.New(errors.ErrorTypeClaimValidation,
			fmt.Sprintf("issuer %q does not match expected %q", claims.Issuer, v.issuer))
	}

	if !audienceContains(claims.Audience, v.clientID) {
		return errors.New(errors.ErrorTypeClaimValidation, "audience does not contain the configured client id")
	}

	if claims.ExpiresAt == nil {
		return errors.New(errors.ErrorTypeClaimValidation, "ID token has no expiry")
	}
	if now.After(claims.ExpiresAt.Time.Add(v.clockSkew)) {
		return errors.New(errors.ErrorTypeClaimValidation, "ID token is expired")
	}

	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(now.Add(v.clockSkew)) {
		return errors.New(errors.ErrorTypeClaimValidation, "ID token issued-at is in the future")
	}

	return nil
}

// classifyParseError maps golang-jwt parse failures onto the flow taxonomy
func (v *Verifier) classifyParseError(err error) error {
	// Key resolution failures carry their own type through the keyfunc
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.SecurityEvent() {
			return securityFail(v.logger, appErr)
		}
		return appErr
	}

	switch {
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return errors.Wrap(errors.ErrorTypeMalformedToken, "ID token could not be parsed", err)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return securityFail(v.logger, errors.Wrap(errors.ErrorTypeInvalidSignature, "ID token signature verification failed", err))
	default:
		return securityFail(v.logger, errors.Wrap(errors.ErrorTypeInvalidSignature, "ID token could not be verified", err))
	}
}

func audienceContains(audience jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audience {
		if aud == clientID {
			return true
		}
	}
	return false
}

func securityFail(log *logger.Logger, appErr *errors.AppError) error {
	log.SecurityEvent("ID token verification failed", appErr)
	return appErr
}
