package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authcore/internal/domain"
	"authcore/pkg/errors"
)

// Issuer signs and validates the application's own session tokens. It is
// the boundary between the login flow and the rest of the application:
// the flow hands it a reconciled user and gets back an opaque credential.
type Issuer struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
}

// Claims is the session token claim set
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider"`
}

// NewIssuer creates a session issuer
func NewIssuer(secret string, issuer string, lifetime time.Duration) *Issuer {
	return &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		lifetime: lifetime,
	}
}

// Issue signs a session token for the user
func (i *Issuer) Issue(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
		Email:    user.Email,
		Provider: string(user.Provider),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeInternal, "failed to sign session token", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeClaimValidation, "session token is invalid", err)
	}
	if !token.Valid {
		return nil, errors.New(errors.ErrorTypeClaimValidation, "session token is invalid")
	}
	return claims, nil
}
