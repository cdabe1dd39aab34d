// Package main starts the gateway simulator: a local HTTP server that speaks
// the gateway's login, session and reboot endpoints, backed by Postgres or
// an in-memory store.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/atinyakov/tmhi/internal/config"
	"github.com/atinyakov/tmhi/internal/db"
	"github.com/atinyakov/tmhi/internal/logger"
	"github.com/atinyakov/tmhi/internal/metrics"
	"github.com/atinyakov/tmhi/internal/models"
	"github.com/atinyakov/tmhi/internal/repository"
	"github.com/atinyakov/tmhi/internal/server/handler/http"
	"github.com/atinyakov/tmhi/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.ParseServer(os.Args[1:], nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		accounts service.AccountRepository
		sessions service.SessionRepository
	)
	if options.DatabaseDSN == "" {
		store := repository.NewMemoryStore(nil)
		accounts, sessions = store, store
		zapLogger.Info("using in-memory store")
	} else {
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()

		db.StartExpiredSessionCleaner(ctx, postgresDB,
			time.Minute,        // interval
			options.SessionTTL, // grace
			zapLogger,
		)
		accounts = repository.NewPostgresAccountRepository(postgresDB)
		sessions = repository.NewPostgresSessionRepository(postgresDB)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gatewayService := service.NewGatewayService(accounts, sessions, service.Options{
		Iterations: options.Iterations,
		SessionTTL: options.SessionTTL,
		Metrics:    metrics.New(reg),
	})
	if options.Password != "" {
		err := gatewayService.SeedAccount(ctx, models.Account{Username: options.Username, Password: options.Password})
		if err != nil {
			zapLogger.Fatal("failed to seed account", zap.Error(err))
		}
	} else {
		zapLogger.Warn("no password configured, account not seeded", zap.String("username", options.Username))
	}

	authHandler := &http.AuthHandler{AuthService: gatewayService, Log: zapLogger}
	sessionHandler := &http.SessionHandler{SessionService: gatewayService, Log: zapLogger}
	router := http.NewRouter(authHandler, sessionHandler, reg, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting HTTP server",
		zap.String("addr", options.Address),
		zap.Int("iterations", options.Iterations),
		zap.Duration("session_ttl", options.SessionTTL),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
