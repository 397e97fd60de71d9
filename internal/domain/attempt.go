package domain

import "time"

// LoginAttempt binds one browser-initiated login to the state and nonce
// issued for it. An attempt is consumed exactly once on callback; after
// consumption or TTL expiry its state never validates again.
type LoginAttempt struct {
	State          string    `json:"state"`
	Nonce          string    `json:"nonce"`
	RedirectTarget string    `json:"redirect_target,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
