package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/erauner12/journalsync/internal/config"
	"github.com/erauner12/journalsync/internal/db"
	"github.com/erauner12/journalsync/internal/httpapi"
	"github.com/erauner12/journalsync/internal/service/escrowservice"
	"github.com/erauner12/journalsync/internal/service/syncservice"
	"github.com/erauner12/journalsync/internal/store"
	"github.com/erauner12/journalsync/internal/store/memstore"
	"github.com/erauner12/journalsync/internal/store/pgstore"
	"github.com/erauner12/journalsync/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "Path to configuration file (JSON)")

// backend is what the HTTP layer needs from a storage implementation
type backend struct {
	records store.Records
	escrow  store.Escrow
	users   auth.UserResolver
	sink    usage.Sink
	ready   func(ctx context.Context) error
	close   func()
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	ctx := context.Background()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("failed to open storage")
	}
	defer be.close()

	reporter := usage.NewAsyncReporter(be.sink, usage.Options{
		Buffer:    cfg.Usage.Buffer,
		BatchSize: cfg.Usage.BatchSize,
	})
	go func() {
		for f := range reporter.Failures() {
			log.Warn().Err(f.Err).Int("events", f.Events).Bool("dropped", f.Dropped).Msg("usage events lost")
		}
	}()

	srv := &httpapi.Server{
		Records: syncservice.NewRecordService(be.records, reporter),
		Escrow:  escrowservice.New(be.escrow),
		Users:   be.users,
		Ready:   be.ready,
	}
	if cfg.RateLimit.Enabled {
		srv.RateLimitConfig = &httpapi.RateLimitInfo{
			WindowSeconds: cfg.RateLimit.WindowSeconds,
			MaxRequests:   cfg.RateLimit.MaxRequests,
			Burst:         cfg.RateLimit.Burst,
		}
	}

	jwtCfg := auth.JWTCfg{
		HS256Secret: cfg.JWT.HS256Secret,
		Issuer:      cfg.JWT.Issuer,
		Audience:    cfg.JWT.Audience,
		DevMode:     cfg.DevMode,
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(jwtCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	srv.Close()

	// drain pending usage after the last handler returned
	reporter.Close()

	log.Info().Msg("server stopped")
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store; all data is lost on restart")
		ms := memstore.New()
		return &backend{
			records: ms,
			escrow:  ms,
			users:   auth.SubjectResolver,
			sink:    usage.LogSink{},
			close:   func() {},
		}, nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	pg := pgstore.New(pool)
	return &backend{
		records: pg,
		escrow:  pg,
		users:   pg,
		sink:    pg,
		ready:   pool.Ping,
		close:   pool.Close,
	}, nil
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Pretty logging for local dev
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	log.Logger = log.With().Str("service", "journalsync").Logger()
}
