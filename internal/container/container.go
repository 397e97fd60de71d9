package container

import (
	"context"

	"authcore/internal/attempt"
	"authcore/internal/config"
	"authcore/internal/oauth"
	"authcore/internal/oidc"
	"authcore/internal/reconcile"
	"authcore/internal/repository"
	"authcore/internal/service"
	"authcore/internal/session"
	"authcore/pkg/database"
	"authcore/pkg/logger"
	"authcore/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *logger.Logger
	RedisClient   *redis.Client
	Database      *database.PostgresDB
	UserStore     repository.UserStore
	LoginService  service.LoginService
	SessionIssuer *session.Issuer
}

// New creates the dependency container. OIDC discovery runs here, so a
// wrong issuer URL fails startup rather than the first login.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	redisClient, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
	if err != nil {
		return nil, err
	}

	// Without a database the service runs on the in-memory store; fine
	// for local development, not for anything shared
	var db *database.PostgresDB
	var userStore repository.UserStore
	if cfg.DatabaseURL != "" {
		db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		userStore = repository.NewUserRepository(db)
	} else {
		log.Warn("DATABASE_URL not configured, using in-memory user store")
		userStore = repository.NewMemoryUserStore()
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL, log)
	if err != nil {
		return nil, err
	}

	oauthClient := oauth.NewClient(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.RedirectURL,
		cfg.Scopes,
		provider.Endpoint(),
		log,
	)

	verifier := provider.Verifier(cfg.GoogleClientID, cfg.ClockSkew)
	attempts := attempt.NewRedisStore(redisClient, cfg.StateTTL, log)
	enricher := service.NewUserinfoEnricher(oauthClient, log)
	reconciler := reconcile.New(userStore, reconcile.Options{LinkByEmail: cfg.LinkByEmail}, log)

	loginService := service.NewLoginService(attempts, oauthClient, verifier, enricher, reconciler, log)
	sessionIssuer := session.NewIssuer(cfg.SessionSecret, "authcore", cfg.SessionTTL)

	return &Container{
		Config:        cfg,
		Logger:        log,
		RedisClient:   redisClient,
		Database:      db,
		UserStore:     userStore,
		LoginService:  loginService,
		SessionIssuer: sessionIssuer,
	}, nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetRedisClient returns the Redis client
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// GetDatabase returns the database pool (nil when running in-memory)
func (c *Container) GetDatabase() *database.PostgresDB {
	return c.Database
}

// GetUserStore returns the user store
func (c *Container) GetUserStore() repository.UserStore {
	return c.UserStore
}

// GetLoginService returns the login service
func (c *Container) GetLoginService() service.LoginService {
	return c.LoginService
}

// GetSessionIssuer returns the session issuer
func (c *Container) GetSessionIssuer() *session.Issuer {
	return c.SessionIssuer
}

// Close releases held connections
func (c *Container) Close() error {
	var firstErr error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Database != nil {
		c.Database.Close()
	}
	return firstErr
}
