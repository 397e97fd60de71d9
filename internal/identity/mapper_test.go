package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authcore/internal/domain"
	apperrors "authcore/pkg/errors"
)

func TestMap(t *testing.T) {
	claims := &domain.RawIdentityClaims{
		Issuer:        "https://accounts.google.com",
		Subject:       "google-001",
		Email:         "ada@example.com",
		EmailVerified: true,
		GivenName:     "Ada",
		FamilyName:    "Lovelace",
		PictureURL:    "https://lh3.example.com/photo.jpg",
	}

	identity, err := Map(claims, domain.ProviderGoogle)
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderGoogle, identity.Provider)
	assert.Equal(t, "google-001", identity.ExternalID)
	require.NotNil(t, identity.Email)
	assert.Equal(t, "ada@example.com", *identity.Email)
	assert.True(t, identity.EmailVerified)
	require.NotNil(t, identity.FirstName)
	assert.Equal(t, "Ada", *identity.FirstName)
	require.NotNil(t, identity.LastName)
	assert.Equal(t, "Lovelace", *identity.LastName)
	require.NotNil(t, identity.PictureURL)
	assert.Equal(t, "https://lh3.example.com/photo.jpg", *identity.PictureURL)
}

func TestMapMissingMandatoryClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims *domain.RawIdentityClaims
	}{
		{
			name:   "No subject",
			claims: &domain.RawIdentityClaims{Issuer: "https://accounts.google.com"},
		},
		{
			name:   "No issuer",
			claims: &domain.RawIdentityClaims{Subject: "google-001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Map(tt.claims, domain.ProviderGoogle)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorTypeMissingClaim, apperrors.TypeOf(err))
		})
	}
}

func TestMapOptionalFieldsAbsent(t *testing.T) {
	claims := &domain.RawIdentityClaims{
		Issuer:  "https://accounts.google.com",
		Subject: "google-002",
	}

	identity, err := Map(claims, domain.ProviderGoogle)
	require.NoError(t, err)

	assert.Nil(t, identity.Email)
	assert.Nil(t, identity.FirstName)
	assert.Nil(t, identity.LastName)
	assert.Nil(t, identity.PictureURL)
	assert.False(t, identity.EmailVerified)
}

func TestMapInvalidEmailDropped(t *testing.T) {
	claims := &domain.RawIdentityClaims{
		Issuer:  "https://accounts.google.com",
		Subject: "google-003",
		Email:   "not an address",
	}

	identity, err := Map(claims, domain.ProviderGoogle)
	require.NoError(t, err)
	assert.Nil(t, identity.Email)
}

func TestMapPictureURLValidation(t *testing.T) {
	tests := []struct {
		name    string
		picture string
		kept    bool
	}{
		{name: "Absolute https", picture: "https://lh3.example.com/p.jpg", kept: true},
		{name: "Plain http", picture: "http://lh3.example.com/p.jpg", kept: false},
		{name: "Relative path", picture: "/p.jpg", kept: false},
		{name: "Garbage", picture: "::not-a-url::", kept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &domain.RawIdentityClaims{
				Issuer:     "https://accounts.google.com",
				Subject:    "google-004",
				PictureURL: tt.picture,
			}

			identity, err := Map(claims, domain.ProviderGoogle)
			require.NoError(t, err)

			if tt.kept {
				require.NotNil(t, identity.PictureURL)
				assert.Equal(t, tt.picture, *identity.PictureURL)
			} else {
				assert.Nil(t, identity.PictureURL)
			}
		})
	}
}

func TestMapDisplayNameFallback(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		wantFirst   *string
		wantLast    *string
	}{
		{
			name:        "Two parts",
			displayName: "Ada Lovelace",
			wantFirst:   strPtr("Ada"),
			wantLast:    strPtr("Lovelace"),
		},
		{
			name:        "Three parts",
			displayName: "Ada King Lovelace",
			wantFirst:   strPtr("Ada"),
			wantLast:    strPtr("King Lovelace"),
		},
		{
			name:        "Single name",
			displayName: "Ada",
			wantFirst:   strPtr("Ada"),
			wantLast:    nil,
		},
		{
			name:        "Empty",
			displayName: "",
			wantFirst:   nil,
			wantLast:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &domain.RawIdentityClaims{
				Issuer:      "https://accounts.google.com",
				Subject:     "google-005",
				DisplayName: tt.displayName,
			}

			identity, err := Map(claims, domain.ProviderGoogle)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFirst, identity.FirstName)
			assert.Equal(t, tt.wantLast, identity.LastName)
		})
	}
}

func TestMapStructuredNamesWinOverDisplayName(t *testing.T) {
	claims := &domain.RawIdentityClaims{
		Issuer:      "https://accounts.google.com",
		Subject:     "google-006",
		GivenName:   "Ada",
		DisplayName: "Someone Else",
	}

	identity, err := Map(claims, domain.ProviderGoogle)
	require.NoError(t, err)

	require.NotNil(t, identity.FirstName)
	assert.Equal(t, "Ada", *identity.FirstName)
	assert.Nil(t, identity.LastName)
}

func strPtr(s string) *string {
	return &s
}
