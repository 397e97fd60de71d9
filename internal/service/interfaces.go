package service

import (
	"context"

	"authcore/internal/domain"
)

// LoginResult is what a completed login hands to the session layer. The
// provider's access and refresh tokens are opaque blobs forwarded as-is.
type LoginResult struct {
	User           *domain.User
	AccessToken    string
	RefreshToken   string
	RedirectTarget string
}

// LoginService runs the two halves of the authorization code flow
type LoginService interface {
	// StartLogin issues a login attempt and returns the provider
	// authorization URL to redirect the browser to.
	StartLogin(ctx context.Context, redirectTarget string) (string, error)

	// CompleteLogin consumes the provider callback and returns the
	// reconciled user. No user is created or modified when any
	// verification step fails.
	CompleteLogin(ctx context.Context, code, state string) (*LoginResult, error)
}
