package repository

import (
	"context"

	"authcore/internal/domain"
)

// UserStore is the persistence boundary for reconciled users. The store
// owns the atomicity guarantee behind InsertIfAbsent: a unique constraint
// on (provider, external_id) makes concurrent first-time logins collapse
// to one row.
type UserStore interface {
	// FindByID looks a user up by internal id.
	// Returns (nil, nil) when no user exists.
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// FindByExternalID looks a user up by provider identity.
	// Returns (nil, nil) when no user exists.
	FindByExternalID(ctx context.Context, provider domain.Provider, externalID string) (*domain.User, error)

	// FindByEmail looks a user up by email, for the account-linking hook.
	// Returns (nil, nil) when no user exists.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// InsertIfAbsent creates the user unless one already exists for its
	// (provider, external_id). An existing row fails with a
	// PersistenceConflict error; it never overwrites.
	InsertIfAbsent(ctx context.Context, user *domain.User) (*domain.User, error)

	// UpdateProfile refreshes the mutable profile fields and the
	// profile-sync timestamp of an existing user.
	UpdateProfile(ctx context.Context, user *domain.User) error
}
