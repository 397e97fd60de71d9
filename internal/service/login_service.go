package service

import (
	"context"

	"authcore/internal/attempt"
	"authcore/internal/domain"
	"authcore/internal/identity"
	"authcore/internal/oauth"
	"authcore/internal/oidc"
	"authcore/internal/reconcile"
	"authcore/pkg/errors"
	"authcore/pkg/logger"
)

// loginService wires the flow components together in strict order:
// consume state, exchange code, verify token, map claims, reconcile.
type loginService struct {
	attempts   attempt.Store
	oauth      *oauth.Client
	verifier   *oidc.Verifier
	enricher   *UserinfoEnricher
	reconciler *reconcile.Reconciler
	logger     *logger.Logger
}

// NewLoginService creates the login service. The enricher may be nil;
// profile enrichment is optional.
func NewLoginService(
	attempts attempt.Store,
	oauthClient *oauth.Client,
	verifier *oidc.Verifier,
	enricher *UserinfoEnricher,
	reconciler *reconcile.Reconciler,
	log *logger.Logger,
) LoginService {
	return &loginService{
		attempts:   attempts,
		oauth:      oauthClient,
		verifier:   verifier,
		enricher:   enricher,
		reconciler: reconciler,
		logger:     log,
	}
}

// StartLogin issues state and nonce and builds the authorization redirect
func (s *loginService) StartLogin(ctx context.Context, redirectTarget string) (string, error) {
	att, err := s.attempts.Issue(ctx, redirectTarget)
	if err != nil {
		return "", err
	}

	authURL, err := s.oauth.AuthCodeURL(att.State, att.Nonce)
	if err != nil {
		return "", err
	}

	s.logger.Debug("Login started")
	return authURL, nil
}

// CompleteLogin handles the provider callback
func (s *loginService) CompleteLogin(ctx context.Context, code, state string) (*LoginResult, error) {
	if code == "" {
		return nil, errors.New(errors.ErrorTypeMissingCode, "callback carried no authorization code")
	}

	att, err := s.attempts.Consume(ctx, state)
	if err != nil {
		return nil, err
	}

	exchange, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	claims, err := s.verifier.Verify(ctx, exchange.RawIDToken, att.Nonce)
	if err != nil {
		return nil, err
	}

	mapped, err := identity.Map(claims, domain.ProviderGoogle)
	if err != nil {
		return nil, err
	}

	// Best effort; a failed userinfo call never fails the login
	if s.enricher != nil {
		s.enricher.Enrich(ctx, mapped, exchange.AccessToken)
	}

	user, err := s.reconciler.Reconcile(ctx, mapped)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"provider": user.Provider,
	}).Info("Login completed")

	return &LoginResult{
		User:           user,
		AccessToken:    exchange.AccessToken,
		RefreshToken:   exchange.RefreshToken,
		RedirectTarget: att.RedirectTarget,
	}, nil
}
