// Coachd is a phase-structured coaching daemon.
//
// It runs a four-phase coaching dialogue (framing, exploration, challenge,
// synthesis) over an HTTP API, with per-session turn budgets, Anthropic-backed
// response generation, and SQLite persistence.
//
// Usage:
//
//	# Start the daemon with defaults
//	coachd
//
//	# Use a specific config file
//	coachd -config /etc/coachd/config.yaml
//
//	# Show version information
//	coachd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/gateway"
	coachhttp "github.com/fyrsmithlabs/coachd/internal/http"
	"github.com/fyrsmithlabs/coachd/internal/logging"
	"github.com/fyrsmithlabs/coachd/internal/reflection"
	"github.com/fyrsmithlabs/coachd/internal/session"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/fyrsmithlabs/coachd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/coachd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  coachd           Start the coaching daemon\n")
			fmt.Fprintf(os.Stderr, "  coachd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("coachd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the coachd server and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting coachd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	st, err := initStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	svc, err := initService(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize coaching service: %w", err)
	}

	srv, err := coachhttp.NewServer(svc, logger, &coachhttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initStore resolves the database path and opens the SQLite store.
func initStore(cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	dbPath, err := config.ExpandPath(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	st, err := store.New(dbPath)
	if err != nil {
		return nil, err
	}

	logger.Info("Storage initialized", zap.String("path", dbPath))
	return st, nil
}

// initService wires the LLM gateways, the turn machine, and the reflection
// generator into the coaching service.
func initService(cfg *config.Config, st *store.Store, logger *zap.Logger) (coaching.Service, error) {
	client, err := gateway.NewClient(&cfg.LLM)
	if err != nil {
		return nil, err
	}

	extractor := gateway.NewExtractor(client, cfg.Gateways.ExtractTimeout.Duration())
	confirmer := gateway.NewConfirmer(client, cfg.Gateways.ConfirmTimeout.Duration())
	responder := gateway.NewResponder(client)
	generator := reflection.NewGenerator(client, cfg.Gateways.ReflectTimeout.Duration(), logger)

	machine := session.NewMachine(extractor, confirmer, logger)

	return coaching.NewService(
		&coaching.Config{
			DefaultMaxTurns: cfg.Coaching.DefaultMaxTurns,
			MinTurns:        cfg.Coaching.MinTurns,
			MaxTurns:        cfg.Coaching.MaxTurns,
		},
		st, machine, responder, generator, logger,
	)
}
