package domain

import "time"

// Provider identifies the external identity provider a user signed in with.
type Provider string

const (
	ProviderGoogle Provider = "google"
)

// User represents a persisted application user. For a given
// (provider, external_id) pair at most one User exists; the user
// store enforces this with a unique constraint.
type User struct {
	ID                string     `json:"id"`
	Provider          Provider   `json:"provider"`
	ExternalID        string     `json:"external_id"`
	Email             string     `json:"email,omitempty"`
	FirstName         string     `json:"first_name,omitempty"`
	LastName          string     `json:"last_name,omitempty"`
	PictureURL        string     `json:"picture_url,omitempty"`
	EmailVerified     bool       `json:"email_verified"`
	NeedsVerification bool       `json:"needs_verification"`
	Active            bool       `json:"active"`
	ProfileSyncedAt   *time.Time `json:"profile_synced_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
