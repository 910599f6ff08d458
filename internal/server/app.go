// Package server wires the account server together: database, session
// store, blob storage, services, the HTTP surface and the gRPC health
// endpoint. It also handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/blobstore"
	"github.com/dmitrijs2005/accounts/internal/server/config"
	httpx "github.com/dmitrijs2005/accounts/internal/server/http"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/dmitrijs2005/accounts/internal/server/sessions"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/accounts/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	accounts *services.AccountService
	http     *http.Server
	health   *gs.HealthServer
}

// OpenDatabase opens the PostgreSQL pool and checks that it answers.
func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(repomanager.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}
	if c.SecretKey == config.DefaultSecretKey {
		logger.Warn(ctx, "using the default secret key; set ACCOUNTS_SECRET_KEY outside development")
	}

	db, err := OpenDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, err := app.sessionStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	blobs, staticDir, err := newBlobStorage(ctx, c)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("blob storage: %w", err)
	}

	secret := []byte(c.SecretKey)
	tokens := services.NewTokenIssuer(db, rm, secret, logger)
	app.accounts = services.NewAccountService(services.AccountDeps{
		DB:             db,
		RepoManager:    rm,
		Tokens:         tokens,
		Sessions:       store,
		Blobs:          blobs,
		Hasher:         auth.NewHasher(c.BcryptCost),
		MaxAvatarBytes: c.MaxAvatarBytes,
		Logger:         logger,
	})

	router, err := httpx.NewRouter(httpx.Options{
		Accounts:       app.accounts,
		Logger:         logger,
		CookieName:     c.SessionCookieName,
		CookieSecure:   c.SessionCookieSecure,
		SessionTTL:     c.SessionTTL,
		MaxAvatarBytes: c.MaxAvatarBytes,
		StaticDir:      staticDir,
		StaticPrefix:   c.BlobPublicURL,
		Ping:           app.ping,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("router: %w", err)
	}

	app.http = &http.Server{
		Addr:              c.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if c.GRPCHealthAddr != "" {
		app.health = gs.NewHealthServer(c.GRPCHealthAddr, logger, app.ping, 0)
	}

	return app, nil
}

// Accounts exposes the account service to the admin CLI.
func (app *App) Accounts() *services.AccountService {
	return app.accounts
}

func (app *App) sessionStore(ctx context.Context) (sessions.Store, error) {
	if app.config.RedisURL == "" {
		app.logger.Info(ctx, "using in-memory session store")
		return sessions.NewMemoryStore(app.config.SessionTTL), nil
	}
	client, err := sessions.NewRedisClient(ctx, app.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.redis = client
	return sessions.NewRedisStore(client, app.config.SessionTTL), nil
}

// newBlobStorage returns the configured backend and, for local storage, the
// directory the HTTP surface serves.
func newBlobStorage(ctx context.Context, c *config.Config) (blobstore.Storage, string, error) {
	switch c.BlobBackend {
	case config.BlobBackendS3:
		s, err := blobstore.NewS3Storage(ctx, blobstore.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		return s, "", err
	default:
		s, err := blobstore.NewLocalStorage(c.BlobLocalDir, c.BlobPublicURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
}

func (app *App) ping(ctx context.Context) error {
	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if app.redis != nil {
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.http.Shutdown(sctx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.http.Addr)
	if err := app.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until SIGINT/SIGTERM or a server failure, then releases all
// resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.health != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startHealthServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()
	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases the database and Redis connections.
func (app *App) Close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close", "error", err)
		}
		app.redis = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(context.Background(), "db close", "error", err)
		}
		app.db = nil
	}
}
