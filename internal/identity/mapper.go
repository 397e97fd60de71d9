package identity

import (
	"net/mail"
	"net/url"
	"strings"

	"authcore/internal/domain"
	"authcore/pkg/errors"
)

// Map projects verified ID token claims onto the application's identity
// shape. Subject and issuer are mandatory; everything else maps to
// absent when missing or unusable, never to an empty-string sentinel.
func Map(claims *domain.RawIdentityClaims, provider domain.Provider) (*domain.NormalizedIdentity, error) {
	if claims.Subject == "" {
		return nil, errors.New(errors.ErrorTypeMissingClaim, "ID token has no subject claim")
	}
	if claims.Issuer == "" {
		return nil, errors.New(errors.ErrorTypeMissingClaim, "ID token has no issuer claim")
	}

	identity := &domain.NormalizedIdentity{
		Provider:      provider,
		ExternalID:    claims.Subject,
		Email:         validEmail(claims.Email),
		FirstName:     optional(claims.GivenName),
		LastName:      optional(claims.FamilyName),
		PictureURL:    validPictureURL(claims.PictureURL),
		EmailVerified: claims.EmailVerified,
	}

	// Fall back to splitting the display name when the provider sent no
	// structured name claims
	if identity.FirstName == nil && identity.LastName == nil && claims.DisplayName != "" {
		first, last := splitDisplayName(claims.DisplayName)
		identity.FirstName = optional(first)
		identity.LastName = optional(last)
	}

	return identity, nil
}

// validEmail returns the address if it parses, absent otherwise
func validEmail(email string) *string {
	if email == "" {
		return nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil
	}
	return &addr.Address
}

// validPictureURL accepts absolute https URLs only. A bad picture URL is
// dropped rather than failing the mapping; it must not block login.
func validPictureURL(raw string) *string {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil
	}
	return &raw
}

func splitDisplayName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
