package service

import (
	"context"
	"net/url"
	"time"

	"google.golang.org/api/option"

	googleoauth2 "google.golang.org/api/oauth2/v2"

	"authcore/internal/domain"
	"authcore/internal/oauth"
	"authcore/pkg/logger"
)

// UserinfoEnricher fills profile fields the ID token did not carry by
// asking Google's userinfo endpoint with the login's access token.
// Strictly best effort: it only ever adds absent fields and swallows
// its own failures.
type UserinfoEnricher struct {
	oauth  *oauth.Client
	logger *logger.Logger
}

// NewUserinfoEnricher creates a userinfo enricher
func NewUserinfoEnricher(oauthClient *oauth.Client, log *logger.Logger) *UserinfoEnricher {
	return &UserinfoEnricher{
		oauth:  oauthClient,
		logger: log,
	}
}

// Enrich fetches userinfo and fills absent name and picture fields
func (e *UserinfoEnricher) Enrich(ctx context.Context, identity *domain.NormalizedIdentity, accessToken string) {
	if accessToken == "" {
		return
	}
	if identity.FirstName != nil && identity.LastName != nil && identity.PictureURL != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	svc, err := googleoauth2.NewService(ctx, option.WithHTTPClient(e.oauth.HTTPClient(ctx, accessToken)))
	if err != nil {
		e.logger.WithError(err).Warn("Userinfo enrichment unavailable")
		return
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		e.logger.WithError(err).Warn("Userinfo fetch failed, continuing with token claims")
		return
	}

	if identity.FirstName == nil && info.GivenName != "" {
		identity.FirstName = &info.GivenName
	}
	if identity.LastName == nil && info.FamilyName != "" {
		identity.LastName = &info.FamilyName
	}
	if identity.PictureURL == nil && isHTTPSURL(info.Picture) {
		identity.PictureURL = &info.Picture
	}

	e.logger.WithField("subject", identity.ExternalID).Debug("Identity enriched from userinfo")
}

// isHTTPSURL applies the same picture rule as the claim mapper
func isHTTPSURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}
