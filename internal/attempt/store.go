package attempt

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"authcore/internal/domain"
	"authcore/pkg/errors"
	"authcore/pkg/logger"
	"authcore/pkg/redis"
)

// tokenBytes gives 256 bits of entropy per token, double the required
// minimum for state and nonce values.
const tokenBytes = 32

// Store issues and consumes login attempts. Consume is a single-use
// check: a state value that was consumed or expired never validates
// again.
type Store interface {
	Issue(ctx context.Context, redirectTarget string) (*domain.LoginAttempt, error)
	Consume(ctx context.Context, state string) (*domain.LoginAttempt, error)
}

// redisStore keeps pending attempts in Redis so replay protection holds
// across instances. The TTL on the state key is the attempt's lifetime;
// abandoned logins simply expire.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisStore creates a Redis-backed attempt store
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *logger.Logger) Store {
	return &redisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Issue generates a state/nonce pair and records the pending attempt
func (s *redisStore) Issue(ctx context.Context, redirectTarget string) (*domain.LoginAttempt, error) {
	state, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInternal, "failed to generate state token", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInternal, "failed to generate nonce", err)
	}

	att := &domain.LoginAttempt{
		State:          state,
		Nonce:          nonce,
		RedirectTarget: redirectTarget,
		CreatedAt:      time.Now().UTC(),
	}

	payload, err := json.Marshal(att)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInternal, "failed to encode login attempt", err)
	}

	key := s.client.KeyBuilder.KeyLoginState(state)
	ok, err := s.client.SetNX(ctx, key, payload, s.ttl)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInternal, "failed to store login attempt", err)
	}
	if !ok {
		// 256-bit collision; treat the same as a generation failure
		return nil, errors.New(errors.ErrorTypeInternal, "state token already in use")
	}

	s.logger.WithField("state_prefix", state[:min(8, len(state))]).Debug("Login attempt issued")
	return att, nil
}

// Consume atomically removes and returns the attempt for a state token.
// Fails closed: an unknown, expired, or already-consumed state aborts
// the flow.
func (s *redisStore) Consume(ctx context.Context, state string) (*domain.LoginAttempt, error) {
	if state == "" {
		return nil, errors.New(errors.ErrorTypeStateValidation, "state parameter is empty")
	}

	key := s.client.KeyBuilder.KeyLoginState(state)
	payload, err := s.client.GetDel(ctx, key)
	if err == redis.Nil {
		return nil, errors.New(errors.ErrorTypeStateValidation, "state is unknown, expired, or already consumed")
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInternal, "failed to consume login attempt", err)
	}

	var att domain.LoginAttempt
	if err := json.Unmarshal([]byte(payload), &att); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeInternal, "failed to decode login attempt", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"state_prefix": state[:min(8, len(state))],
		"age":          time.Since(att.CreatedAt).String(),
	}).Debug("Login attempt consumed")

	return &att, nil
}

// randomToken returns a URL-safe opaque token from crypto/rand
func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
