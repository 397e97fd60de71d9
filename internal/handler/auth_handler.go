package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"authcore/internal/container"
	"authcore/internal/middleware"
	"authcore/internal/session"
	"authcore/pkg/errors"
)

// AuthHandler serves the login flow endpoints
type AuthHandler struct {
	container *container.Container
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(c *container.Container) *AuthHandler {
	return &AuthHandler{container: c}
}

// Login starts the flow: issues a login attempt and redirects the
// browser to the provider's consent page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.container.GetLogger()

	redirectTarget := sanitizeRedirectTarget(r.URL.Query().Get("redirect"))

	authURL, err := h.container.GetLoginService().StartLogin(r.Context(), redirectTarget)
	if err != nil {
		log.WithError(err).Error("Failed to start login")
		h.redirectWithError(w, r)
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback completes the flow. Terminal failures all surface to the
// browser as the same generic error; the distinguishing detail goes to
// the operator log only.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := h.container.GetLogger()

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		log.WithField("provider_error", providerErr).Warn("Provider returned an error on callback")
		h.redirectWithError(w, r)
		return
	}

	result, err := h.container.GetLoginService().CompleteLogin(r.Context(), query.Get("code"), query.Get("state"))
	if err != nil {
		log.WithError(err).WithField("error_type", string(errors.TypeOf(err))).Error("Login failed")
		h.redirectWithError(w, r)
		return
	}

	sessionToken, err := h.container.GetSessionIssuer().Issue(result.User)
	if err != nil {
		log.WithError(err).Error("Failed to issue session token")
		h.redirectWithError(w, r)
		return
	}

	target, err := url.Parse(h.container.GetConfig().FrontendURL + result.RedirectTarget)
	if err != nil {
		log.WithError(err).Error("Failed to build frontend redirect")
		h.redirectWithError(w, r)
		return
	}

	params := url.Values{}
	params.Set("token", sessionToken)
	target.RawQuery = params.Encode()

	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

// Profile returns the authenticated user's stored record
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	log := h.container.GetLogger()

	claims, ok := r.Context().Value(middleware.SessionContextKey).(*session.Claims)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"error":   map[string]string{"type": "authentication", "message": "Not authenticated"},
		})
		return
	}

	stored, err := h.container.GetUserStore().FindByID(r.Context(), claims.Subject)
	if err != nil || stored == nil {
		log.WithError(err).WithField("user_id", claims.Subject).Error("Failed to load user profile")
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   map[string]string{"type": "not_found", "message": "User not found"},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stored,
	})
}

// redirectWithError sends the browser to the frontend failure page with
// the one generic message
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request) {
	frontendURL := h.container.GetConfig().FrontendURL
	http.Redirect(w, r, frontendURL+"/?error=signin_failed", http.StatusTemporaryRedirect)
}

// sanitizeRedirectTarget keeps post-login redirects on-site
func sanitizeRedirectTarget(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
