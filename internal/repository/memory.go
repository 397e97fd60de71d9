package repository

import (
	"context"
	"sync"
	"time"

	"authcore/internal/domain"
	"authcore/pkg/errors"
)

// MemoryUserStore is an in-memory UserStore with the same insert-if-absent
// contract as the PostgreSQL implementation. Used in tests and local
// development without a database.
type MemoryUserStore struct {
	mu    sync.Mutex
	byKey map[string]*domain.User
	byID  map[string]*domain.User
}

// NewMemoryUserStore creates an empty in-memory user store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byKey: map[string]*domain.User{},
		byID:  map[string]*domain.User{},
	}
}

func identityKey(provider domain.Provider, externalID string) string {
	return string(provider) + "\x00" + externalID
}

// FindByID retrieves a user by internal id
func (s *MemoryUserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return copyUser(user), nil
}

// FindByExternalID retrieves a user by provider identity
func (s *MemoryUserStore) FindByExternalID(ctx context.Context, provider domain.Provider, externalID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byKey[identityKey(provider, externalID)]
	if !ok {
		return nil, nil
	}
	return copyUser(user), nil
}

// FindByEmail retrieves the oldest user with the given email
func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.User
	for _, user := range s.byKey {
		if user.Email != email {
			continue
		}
		if oldest == nil || user.CreatedAt.Before(oldest.CreatedAt) {
			oldest = user
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return copyUser(oldest), nil
}

// InsertIfAbsent creates the user unless the provider identity exists
func (s *MemoryUserStore) InsertIfAbsent(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey(user.Provider, user.ExternalID)
	if _, exists := s.byKey[key]; exists {
		return nil, errors.New(errors.ErrorTypePersistenceConflict, "user already exists for this provider identity")
	}

	stored := copyUser(user)
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byKey[key] = stored
	s.byID[stored.ID] = stored
	return copyUser(stored), nil
}

// UpdateProfile refreshes mutable profile fields and stamps the sync time
func (s *MemoryUserStore) UpdateProfile(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[user.ID]
	if !ok {
		return errors.New(errors.ErrorTypeInternal, "no user with that id")
	}

	now := time.Now().UTC()
	stored.Email = user.Email
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.PictureURL = user.PictureURL
	stored.EmailVerified = user.EmailVerified
	stored.ProfileSyncedAt = &now
	stored.UpdatedAt = now

	user.ProfileSyncedAt = &now
	user.UpdatedAt = now
	return nil
}

// Count returns the number of stored users; test helper
func (s *MemoryUserStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func copyUser(u *domain.User) *domain.User {
	clone := *u
	if u.ProfileSyncedAt != nil {
		t := *u.ProfileSyncedAt
		clone.ProfileSyncedAt = &t
	}
	return &clone
}
