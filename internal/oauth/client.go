package oauth

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"authcore/pkg/errors"
	"authcore/pkg/logger"
)

const (
	exchangeTimeout = 10 * time.Second
	retryBackoff    = 500 * time.Millisecond
)

// Client drives the outbound half of the authorization code flow:
// building the redirect to the provider and exchanging the returned
// code for tokens.
type Client struct {
	config  *oauth2.Config
	backoff time.Duration
	logger  *logger.Logger
}

// ExchangeResult carries the provider's token response. The access and
// refresh tokens are opaque blobs forwarded to the session layer; only
// the ID token is parsed further.
type ExchangeResult struct {
	RawIDToken   string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// NewClient creates an OAuth client for one registered application
func NewClient(clientID, clientSecret, redirectURL string, scopes []string, endpoint oauth2.Endpoint, log *logger.Logger) *Client {
	return &Client{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		backoff: retryBackoff,
		logger:  log,
	}
}

// AuthCodeURL builds the authorization redirect for one login attempt.
// The nonce rides along as an extra parameter and comes back inside the
// ID token, binding the token to this attempt.
func (c *Client) AuthCodeURL(state, nonce string) (string, error) {
	if c.config.ClientID == "" {
		return "", errors.New(errors.ErrorTypeConfiguration, "client id is not configured")
	}
	if c.config.RedirectURL == "" {
		return "", errors.New(errors.ErrorTypeConfiguration, "redirect URL is not configured")
	}

	return c.config.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("nonce", nonce),
	), nil
}

// Exchange trades an authorization code for tokens. A transient upstream
// failure is retried exactly once with a short backoff; everything else
// is terminal, since the provider rejects a replayed code anyway.
func (c *Client) Exchange(ctx context.Context, code string) (*ExchangeResult, error) {
	result, err := c.exchangeOnce(ctx, code)
	if err == nil {
		return result, nil
	}

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) || !appErr.Retryable() {
		return nil, err
	}

	c.logger.WithError(err).Warn("Token exchange failed, retrying once")
	select {
	case <-time.After(c.backoff):
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrorTypeUpstreamUnavailable, "token exchange cancelled", ctx.Err())
	}

	return c.exchangeOnce(ctx, code)
}

func (c *Client) exchangeOnce(ctx context.Context, code string) (*ExchangeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	start := time.Now()
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, c.classifyExchangeError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New(errors.ErrorTypeMalformedToken, "token response contains no id_token")
	}

	c.logger.WithField("duration", time.Since(start).String()).Debug("Authorization code exchanged")

	return &ExchangeResult{
		RawIDToken:   rawIDToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// classifyExchangeError separates the provider's terminal rejections
// from transient transport failures
func (c *Client) classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		switch {
		case retrieveErr.ErrorCode == "invalid_grant":
			// Code already consumed, expired, or never issued
			return errors.Wrap(errors.ErrorTypeCodeAlreadyUsed, "authorization code was rejected by the provider", err)
		case retrieveErr.ErrorCode == "invalid_client" || retrieveErr.ErrorCode == "unauthorized_client":
			return errors.Wrap(errors.ErrorTypeConfiguration, "client credentials were rejected by the provider", err)
		case retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError:
			return errors.Wrap(errors.ErrorTypeUpstreamUnavailable, "token endpoint returned a server error", err)
		default:
			return errors.Wrap(errors.ErrorTypeCodeAlreadyUsed, "token exchange was rejected by the provider", err)
		}
	}

	// Timeouts, refused connections, DNS failures
	return errors.Wrap(errors.ErrorTypeUpstreamUnavailable, "token endpoint is unreachable", err)
}

// SetBackoff overrides the retry backoff; used by tests
func (c *Client) SetBackoff(d time.Duration) {
	c.backoff = d
}

// HTTPClient returns an http client that authorizes requests with the
// given token, for best-effort calls to provider APIs after login.
func (c *Client) HTTPClient(ctx context.Context, accessToken string) *http.Client {
	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}
