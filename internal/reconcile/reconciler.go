package reconcile

import (
	"context"

	"github.com/google/uuid"

	"authcore/internal/domain"
	"authcore/internal/repository"
	"authcore/pkg/errors"
	"authcore/pkg/logger"
)

// Options configures reconciliation policy.
type Options struct {
	// LinkByEmail enables linking a new provider identity to an existing
	// user that shares the email address. Off by default: a provider with
	// spoofable email claims must not be able to take over an account
	// created through another provider.
	LinkByEmail bool
}

// Reconciler maps a verified external identity to exactly one local
// user, creating or refreshing as needed.
type Reconciler struct {
	store  repository.UserStore
	opts   Options
	logger *logger.Logger
}

// New creates a reconciler over the given user store
func New(store repository.UserStore, opts Options, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		opts:   opts,
		logger: log,
	}
}

// Reconcile returns the local user for an external identity. Two
// simultaneous first-time logins with the same identity settle on one
// row: the loser of the insert race retries the lookup path once.
func (r *Reconciler) Reconcile(ctx context.Context, identity *domain.NormalizedIdentity) (*domain.User, error) {
	if identity == nil || identity.ExternalID == "" {
		return nil, errors.New(errors.ErrorTypeMissingClaim, "identity has no external id")
	}

	user, err := r.lookupAndRefresh(ctx, identity)
	if err != nil || user != nil {
		return user, err
	}

	if r.opts.LinkByEmail && identity.Email != nil {
		linked, err := r.store.FindByEmail(ctx, *identity.Email)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeInternal, "email lookup failed", err)
		}
		if linked != nil {
			r.logger.WithFields(map[string]interface{}{
				"user_id":  linked.ID,
				"provider": identity.Provider,
			}).Info("Linked external identity to existing user by email")
			return linked, nil
		}
	}

	created, err := r.create(ctx, identity)
	if err == nil {
		return created, nil
	}

	if errors.TypeOf(err) != errors.ErrorTypePersistenceConflict {
		return nil, err
	}

	// Lost the insert race; the winner's row must exist now
	r.logger.WithField("provider", identity.Provider).Debug("Insert race lost, retrying lookup")
	user, lookupErr := r.lookupAndRefresh(ctx, identity)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if user == nil {
		return nil, errors.Wrap(errors.ErrorTypePersistenceConflict, "user vanished after insert conflict", err)
	}
	return user, nil
}

// lookupAndRefresh finds the user by provider identity and refreshes any
// drifted profile fields. The refresh is best effort: a persistence
// failure logs and falls back to the stored profile instead of failing
// the login.
func (r *Reconciler) lookupAndRefresh(ctx context.Context, identity *domain.NormalizedIdentity) (*domain.User, error) {
	user, err := r.store.FindByExternalID(ctx, identity.Provider, identity.ExternalID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInternal, "user lookup failed", err)
	}
	if user == nil {
		return nil, nil
	}

	if !applyProfile(user, identity) {
		return user, nil
	}

	if err := r.store.UpdateProfile(ctx, user); err != nil {
		r.logger.WithError(err).WithField("user_id", user.ID).Warn("Profile refresh failed, using stored profile")
		stored, lookupErr := r.store.FindByExternalID(ctx, identity.Provider, identity.ExternalID)
		if lookupErr == nil && stored != nil {
			return stored, nil
		}
		return user, nil
	}

	r.logger.WithField("user_id", user.ID).Debug("Profile refreshed from provider claims")
	return user, nil
}

// create builds a new active user from the identity
func (r *Reconciler) create(ctx context.Context, identity *domain.NormalizedIdentity) (*domain.User, error) {
	user := &domain.User{
		ID:         uuid.NewString(),
		Provider:   identity.Provider,
		ExternalID: identity.ExternalID,
		Active:     true,
		// The provider's verified-email claim substitutes for our own
		// verification step; without it the surrounding application's
		// policy decides what the flag means.
		EmailVerified:     identity.EmailVerified,
		NeedsVerification: !identity.EmailVerified,
	}
	if identity.Email != nil {
		user.Email = *identity.Email
	}
	if identity.FirstName != nil {
		user.FirstName = *identity.FirstName
	}
	if identity.LastName != nil {
		user.LastName = *identity.LastName
	}
	if identity.PictureURL != nil {
		user.PictureURL = *identity.PictureURL
	}

	created, err := r.store.InsertIfAbsent(ctx, user)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"user_id":  created.ID,
		"provider": created.Provider,
	}).Info("Created new user from external identity")

	return created, nil
}

// applyProfile copies drifted mutable fields onto the user and reports
// whether anything changed. Absent claims leave stored values alone.
func applyProfile(user *domain.User, identity *domain.NormalizedIdentity) bool {
	changed := false

	if identity.Email != nil && user.Email != *identity.Email {
		user.Email = *identity.Email
		changed = true
	}
	if identity.FirstName != nil && user.FirstName != *identity.FirstName {
		user.FirstName = *identity.FirstName
		changed = true
	}
	if identity.LastName != nil && user.LastName != *identity.LastName {
		user.LastName = *identity.LastName
		changed = true
	}
	if identity.PictureURL != nil && user.PictureURL != *identity.PictureURL {
		user.PictureURL = *identity.PictureURL
		changed = true
	}
	if user.EmailVerified != identity.EmailVerified {
		user.EmailVerified = identity.EmailVerified
		changed = true
	}

	return changed
}
