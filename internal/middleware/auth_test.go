package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authcore/internal/domain"
	"authcore/internal/session"
	"authcore/pkg/logger"
)

func newAuthMiddleware(t *testing.T) (*session.Issuer, func(http.Handler) http.Handler) {
	t.Helper()

	issuer := session.NewIssuer("test-session-secret", "authcore", time.Hour)
	log := &logger.Logger{Logger: zap.NewNop()}
	return issuer, Auth(issuer, log)
}

func echoClaimsHandler(t *testing.T, captured **session.Claims) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(SessionContextKey).(*session.Claims)
		require.True(t, ok)
		*captured = claims
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthAcceptsValidToken(t *testing.T) {
	issuer, mw := newAuthMiddleware(t)

	token, err := issuer.Issue(&domain.User{
		ID:       "user-1",
		Provider: domain.ProviderGoogle,
		Email:    "ada@example.com",
	})
	require.NoError(t, err)

	var captured *session.Claims
	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mw(echoClaimsHandler(t, &captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-1", captured.Subject)
	assert.Equal(t, "ada@example.com", captured.Email)
}

func TestAuthRejections(t *testing.T) {
	_, mw := newAuthMiddleware(t)

	expired := session.NewIssuer("test-session-secret", "authcore", -time.Minute)
	expiredToken, err := expired.Issue(&domain.User{ID: "user-1", Provider: domain.ProviderGoogle})
	require.NoError(t, err)

	foreign := session.NewIssuer("some-other-secret", "authcore", time.Hour)
	foreignToken, err := foreign.Issue(&domain.User{ID: "user-1", Provider: domain.ProviderGoogle})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "No header", header: ""},
		{name: "Not a bearer token", header: "Basic dXNlcjpwYXNz"},
		{name: "Empty bearer token", header: "Bearer "},
		{name: "Garbage token", header: "Bearer not.a.token"},
		{name: "Expired token", header: "Bearer " + expiredToken},
		{name: "Wrong secret", header: "Bearer " + foreignToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			called := false
			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
}
