package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/example/networking-rounds/internal/application"
	"github.com/example/networking-rounds/internal/clock"
	"github.com/example/networking-rounds/internal/config"
	httptransport "github.com/example/networking-rounds/internal/http"
	"github.com/example/networking-rounds/internal/notification"
	"github.com/example/networking-rounds/internal/persistence"
	"github.com/example/networking-rounds/internal/persistence/memory"
	"github.com/example/networking-rounds/internal/persistence/sqlite"
)

func main() {
	flags := pflag.NewFlagSet("roundsd", pflag.ExitOnError)
	configPath := flags.String("config", "", "YAML parameters file (overrides ROUNDS_CONFIG)")
	port := flags.Int("port", 0, "HTTP port (overrides ROUNDS_HTTP_PORT)")
	dbPath := flags.String("db", "", `SQLite database path, or "memory" (overrides ROUNDS_DB_PATH)`)
	_ = flags.Parse(os.Args[1:])

	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.HTTPPort = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	for _, warning := range cfg.Warnings {
		logger.Warn("suspicious phase parameters", "warning", warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Error("failed to close store", "error", cerr)
		}
	}()

	app, err := newApp(cfg, store, clock.Real(), logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	driverDone := make(chan error, 1)
	go func() {
		driverDone <- app.driver.Run(ctx, cfg.DriverInterval)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("rounds API listening", "addr", server.Addr, "store", cfg.DBPath, "driver_interval", cfg.DriverInterval)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		stop()
		<-driverDone
		os.Exit(1)
	}

	if err := <-driverDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("driver stopped with error", "error", err)
	}
	logger.Info("shutdown complete")
}

// openStore opens the durable SQLite store, or the in-memory store when path
// is config.MemoryStore.
func openStore(ctx context.Context, path string) (persistence.Store, func() error, error) {
	if path == config.MemoryStore {
		return memory.New(), func() error { return nil }, nil
	}

	store, err := sqlite.Open(sqlite.DefaultConfig(path))
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store, store.Close, nil
}

type app struct {
	services *services
	driver   *application.Driver
	handler  http.Handler
}

type services struct {
	sessions      *application.SessionService
	registrations *application.RegistrationService
	matching      *application.MatchingService
	outcomes      *application.OutcomeService
}

// newApp wires the services, the driver and the HTTP handler over store.
func newApp(cfg config.Config, store persistence.Store, c clock.Clock, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := clock.Func(c)

	retrying := persistence.NewRetryingStore(store, cfg.Retry, logger)
	repo := newRepositoryAdapter(persistence.NewRepository(retrying))

	notifier, err := notification.NewLogNotifier(now, logger)
	if err != nil {
		return nil, err
	}

	idGenerator := func() string { return uuid.NewString() }
	newRand := func() *rand.Rand {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	cache := application.SessionCacheConfig{Size: cfg.CacheSize, TTL: cfg.CacheTTL}

	s := &services{}
	s.sessions = application.NewSessionService(repo, cfg.Parameters, cache, idGenerator, now, logger)
	s.registrations = application.NewRegistrationService(s.sessions, repo, repo, notifier, cfg.Parameters, application.DefaultArgon2idParams, now, logger)
	s.matching = application.NewMatchingService(repo, repo, notifier, idGenerator, newRand, now, logger)
	s.outcomes = application.NewOutcomeService(s.sessions, repo, repo, cfg.Parameters, now, logger)
	driver := application.NewDriver(s.sessions, repo, repo, s.matching, s.outcomes, notifier, c, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:      httptransport.NewSessionHandler(s.sessions, logger),
		Registrations: httptransport.NewRegistrationHandler(s.registrations, logger),
		Matches:       httptransport.NewMatchHandler(s.outcomes, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Identify,
		},
	})

	return &app{services: s, driver: driver, handler: router}, nil
}
