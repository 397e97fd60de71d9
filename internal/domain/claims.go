package domain

import "time"

// RawIdentityClaims holds the claims extracted from a verified ID token.
// Values are immutable once parsed; empty strings mean the provider did
// not send the claim.
type RawIdentityClaims struct {
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	DisplayName   string
	PictureURL    string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// NormalizedIdentity is the application-shape projection of verified
// claims. Optional fields are pointers so that "provider sent an empty
// value" and "provider sent nothing" stay distinguishable.
type NormalizedIdentity struct {
	Provider      Provider
	ExternalID    string
	Email         *string
	FirstName     *string
	LastName      *string
	PictureURL    *string
	EmailVerified bool
}
