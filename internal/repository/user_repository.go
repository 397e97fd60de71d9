package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"authcore/internal/domain"
	"authcore/pkg/database"
	"authcore/pkg/errors"
)

// userRepository persists users in PostgreSQL
type userRepository struct {
	db *database.PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.PostgresDB) UserStore {
	return &userRepository{
		db: db,
	}
}

const userColumns = `
	id, provider, external_id, email, first_name, last_name, picture_url,
	email_verified, needs_verification, active, profile_synced_at,
	created_at, updated_at
`

// FindByID retrieves a user by internal id
func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}

	return user, nil
}

// FindByExternalID retrieves a user by provider identity
func (r *userRepository) FindByExternalID(ctx context.Context, provider domain.Provider, externalID string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE provider = $1 AND external_id = $2
	`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, provider, externalID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by external id: %w", err)
	}

	return user, nil
}

// FindByEmail retrieves the oldest user with the given email
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1
		ORDER BY created_at ASC
		LIMIT 1
	`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, email))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// InsertIfAbsent creates the user row unless the provider identity is
// already taken. ON CONFLICT DO NOTHING returns no row in that case,
// which surfaces as a PersistenceConflict for the reconciler to retry.
func (r *userRepository) InsertIfAbsent(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (
			id, provider, external_id, email, first_name, last_name, picture_url,
			email_verified, needs_verification, active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (provider, external_id) DO NOTHING
		RETURNING ` + userColumns

	now := time.Now().UTC()
	inserted, err := scanUser(r.db.Pool.QueryRow(ctx, query,
		user.ID,
		user.Provider,
		user.ExternalID,
		nullable(user.Email),
		nullable(user.FirstName),
		nullable(user.LastName),
		nullable(user.PictureURL),
		user.EmailVerified,
		user.NeedsVerification,
		user.Active,
		now,
		now,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.New(errors.ErrorTypePersistenceConflict, "user already exists for this provider identity")
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return inserted, nil
}

// UpdateProfile refreshes mutable profile fields and stamps the sync time
func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $1,
			first_name = $2,
			last_name = $3,
			picture_url = $4,
			email_verified = $5,
			profile_synced_at = $6,
			updated_at = $6
		WHERE id = $7
	`

	now := time.Now().UTC()
	tag, err := r.db.Pool.Exec(ctx, query,
		nullable(user.Email),
		nullable(user.FirstName),
		nullable(user.LastName),
		nullable(user.PictureURL),
		user.EmailVerified,
		now,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no user with id %s", user.ID)
	}

	user.ProfileSyncedAt = &now
	user.UpdatedAt = now
	return nil
}

// scanUser reads one user row
func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	var email, firstName, lastName, pictureURL *string

	err := row.Scan(
		&user.ID,
		&user.Provider,
		&user.ExternalID,
		&email,
		&firstName,
		&lastName,
		&pictureURL,
		&user.EmailVerified,
		&user.NeedsVerification,
		&user.Active,
		&user.ProfileSyncedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Email = deref(email)
	user.FirstName = deref(firstName)
	user.LastName = deref(lastName)
	user.PictureURL = deref(pictureURL)
	return user, nil
}

// nullable stores empty strings as NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
