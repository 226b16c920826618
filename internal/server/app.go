// Package server wires the gatekeeper components together and runs the HTTP
// API, the gRPC API and the cleanup dispatcher until a shutdown signal.
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

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/gatekeeper/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics
	tokens      *auth.TokenService
	accounts    *services.AccountService
}

func NewApp(c *config.Config) (*App, error) {

	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := logging.NewJSONLogger(os.Stdout, level)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Key:      []byte(c.SecretKey),
		Lifetime: c.TokenValidityDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("token service init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	rm := repomanager.NewPostgresRepositoryManager()
	as := services.NewAccountService(db, rm, auth.NewBcryptHasher(c.BcryptCost), tokens, logger, m)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		metrics:     m,
		tokens:      tokens,
		accounts:    as,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) httpHandler() http.Handler {
	reader := app.repomanager.Accounts(app.db)
	filter := authz.NewFilter("http", app.tokens, reader, app.logger, app.metrics)
	h := httpapi.NewHandlers(app.accounts, reader, app.logger)
	return httpapi.NewRouter(h, filter, httpapi.DefaultPolicy(app.config.Realm), app.metrics)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.httpHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.EndpointAddrHTTP)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	reader := app.repomanager.Accounts(app.db)
	filter := authz.NewFilter("grpc", app.tokens, reader, app.logger, app.metrics)
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accounts, filter, gs.DefaultPolicy(app.config.Realm), app.metrics)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startDispatcher(ctx context.Context) {
	d := notify.NewDispatcher(app.config.CleanupEndpoint, app.config.CleanupInterval,
		app.repomanager.Outbox(app.db), app.tokens, app.logger, app.metrics)
	d.Run(ctx)
}

// Run applies migrations and serves until ctx is cancelled or a shutdown
// signal arrives.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	var wg sync.WaitGroup

	if app.config.EndpointAddrHTTP != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startHTTPServer(ctx, cancelFunc)
		}()
	}

	if app.config.EndpointAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startDispatcher(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
	return app.db.Close()
}
