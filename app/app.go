package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/jrsteele09/specranking-client/api"
	"github.com/jrsteele09/specranking-client/bookmarks"
	"github.com/jrsteele09/specranking-client/httpclient"
	"github.com/jrsteele09/specranking-client/internal/config"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/metrics"
	"github.com/jrsteele09/specranking-client/oauth2"
	"github.com/jrsteele09/specranking-client/session"
	"github.com/jrsteele09/specranking-client/token/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Token store backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// App wires the session, the bookmark cache and the HTTP pipeline they share.
type App struct {
	Config    config.Config
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	HTTP      *httpclient.Client
	API       *api.Client
	Session   *session.Manager
	Bookmarks *bookmarks.Cache
	Login     *oauth2.Flow

	store      store.Store
	httpClient *http.Client
}

type Option func(*App)

// WithTokenStore replaces the configured token store backend.
func WithTokenStore(s store.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithHTTPClient replaces the underlying http.Client. Its cookie jar carries the refresh cookie.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}

func New(ctx context.Context, cfg config.Config, options ...Option) (*App, error) {
	a := &App{Config: cfg}
	for _, opt := range options {
		opt(a)
	}

	if a.store == nil {
		s, err := NewTokenStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("[App New] failed to open token store: %w", err)
		}
		a.store = s
	}

	if a.httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("[App New] failed to create cookie jar: %w", err)
		}
		a.httpClient = &http.Client{Jar: jar}
	}

	a.Registry = prometheus.NewRegistry()
	a.Metrics = metrics.New(a.Registry)

	a.HTTP = httpclient.New(cfg.GetAPIBaseURL(),
		httpclient.WithHTTPClient(a.httpClient),
		httpclient.WithTimeout(cfg.GetRequestTimeout()),
		httpclient.WithRateLimit(cfg.GetRateLimit(), cfg.GetRateBurst()),
		httpclient.WithMetrics(a.Metrics),
	)
	a.API = api.New(a.HTTP)

	a.Session = session.New(a.API, a.HTTP, a.store,
		session.WithRefreshMargin(cfg.GetRefreshMargin()),
		session.WithRevokeTimeout(cfg.GetRevokeTimeout()),
		session.WithMetrics(a.Metrics),
	)
	a.Bookmarks = bookmarks.New(a.API,
		bookmarks.WithPageLimit(cfg.GetBookmarkPageLimit()),
		bookmarks.WithMetrics(a.Metrics),
	)
	a.Login = oauth2.NewFlow(cfg)

	// No bookmark state outlives the session that loaded it.
	a.Session.OnSessionEnded(a.Bookmarks.Reset)
	a.Session.OnSessionStarted(a.Bookmarks.InitializeBookmarks)

	log.Debug().Str("api", cfg.GetAPIBaseURL()).Str("store", cfg.GetTokenStoreBackend()).Msg("Client initialised")
	return a, nil
}

// Close releases the token store.
func (a *App) Close() error {
	return a.store.Close()
}

// MetricsHandler exposes the client's collectors in the Prometheus text format.
func (a *App) MetricsHandler() http.Handler {
	return metrics.Handler(a.Registry)
}

// NewTokenStore opens the backend named by cfg.GetTokenStoreBackend.
func NewTokenStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	key := cfg.GetTokenStorageKey()

	switch backend := cfg.GetTokenStoreBackend(); backend {
	case BackendFile:
		return store.NewFileStore(cfg.GetTokenFilePath(), key, store.WithEncryptionKey(cfg.GetTokenEncryptionKey()))
	case BackendSQLite:
		return store.NewSQLiteStore(ctx, cfg.GetSQLitePath(), key)
	case BackendRedis:
		client, err := store.DialRedis(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB())
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(client, key), nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupported, "token store backend %q", backend)
	}
}
