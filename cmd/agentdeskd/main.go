// Command agentdeskd is the AgentDesk server daemon.
// It hosts a simulated organization of agent desks and serves the REST API
// and event stream, wired entirely from the YAML config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GoCodeAlone/agentdesk/audit"
	"github.com/GoCodeAlone/agentdesk/comms"
	"github.com/GoCodeAlone/agentdesk/config"
	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/internal/version"
	"github.com/GoCodeAlone/agentdesk/org"
	"github.com/GoCodeAlone/agentdesk/server"
	"github.com/GoCodeAlone/agentdesk/task"
	"github.com/jackc/pgx/v5/pgxpool"
)

var configPath = flag.String("config", "", "path to YAML config file (built-in defaults when empty)")

const stopTimeout = 10 * time.Second

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting agentdeskd",
		"version", version.Version,
		"commit", version.Commit,
		"org", cfg.Org.Name,
		"storage", cfg.Storage.Driver,
		"bus", cfg.Bus.Driver,
	)

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer st.close(logger)

	bus, closeBus, err := openBus(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect bus: %v", err)
	}

	o, err := org.FromConfig(cfg, org.Config{
		Registry: st.registry,
		Tasks:    st.tasks,
		Bus:      bus,
		Audit:    st.audit,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to build organization: %v", err)
	}

	// First boot on a fresh data dir: seed the snapshot so the configured
	// org survives a crash before the first clean shutdown.
	if st.desks != nil && st.registry == nil {
		if err := st.desks.SaveRegistry(ctx, o.Registry()); err != nil {
			log.Fatalf("Failed to seed desk snapshot: %v", err)
		}
	}

	srv := server.New(*cfg, o, version.Version, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("AgentDesk server listening on %s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
		return
	case <-sigCh:
	}

	fmt.Println("Shutting down...")
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	if err := srv.Stop(stopCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	if err := o.Drain(stopCtx); err != nil {
		logger.Error("drain error", "error", err)
	}
	if err := o.Shutdown(stopCtx); err != nil {
		logger.Error("org shutdown error", "error", err)
	}
	if st.desks != nil {
		if err := st.desks.SaveRegistry(stopCtx, o.Registry()); err != nil {
			logger.Error("save desk snapshot error", "error", err)
		}
	}
	if err := closeBus(); err != nil {
		logger.Error("bus close error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

// loadConfig reads the config file, or falls back to the built-in defaults
// when no path was given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// stores bundles the persistence handles selected by the storage driver.
// desks is nil under the memory driver; registry is nil when no snapshot
// exists yet and the organization should be built from config.
type stores struct {
	tasks    task.Store
	audit    audit.Log
	desks    *desk.Store
	registry *desk.Registry
	closers  []func() error
}

func (s *stores) close(logger *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Error("storage close error", "error", err)
		}
	}
}

// openStores wires task storage, the audit log, and the desk snapshot store
// for the configured driver. The desk snapshot and audit log stay on SQLite
// files in the data dir even under the postgres driver; only task rows move
// into Postgres.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	if cfg.Storage.Driver == "memory" {
		st.tasks = task.NewMemStore()
		st.audit = audit.NewMemLog()
		return st, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	fail := func(err error) (*stores, error) {
		for _, c := range st.closers {
			_ = c()
		}
		return nil, err
	}

	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		pg := task.NewPostgresStore(pool)
		st.closers = append(st.closers, func() error { pg.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return fail(fmt.Errorf("ping postgres: %w", err))
		}
		if err := pg.EnsureTable(ctx); err != nil {
			return fail(fmt.Errorf("create tasks table: %w", err))
		}
		st.tasks = pg
	default: // sqlite
		path := cfg.Storage.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "tasks.db")
		}
		tasks, err := task.NewSQLiteStore(path)
		if err != nil {
			return fail(err)
		}
		st.closers = append(st.closers, tasks.Close)
		st.tasks = tasks
	}

	auditLog, err := audit.NewSQLiteLog(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		return fail(err)
	}
	st.closers = append(st.closers, auditLog.Close)
	st.audit = auditLog

	desks, err := desk.NewStore(filepath.Join(cfg.DataDir, "org.db"))
	if err != nil {
		return fail(err)
	}
	st.closers = append(st.closers, desks.Close)
	st.desks = desks

	registry, err := desks.LoadRegistry(ctx)
	if err != nil {
		return fail(err)
	}
	if len(registry.List()) > 0 {
		st.registry = registry
	}
	return st, nil
}

// openBus selects the notification bus. The returned func closes the NATS
// connection and is a no-op for the in-process bus.
func openBus(cfg *config.Config, logger *slog.Logger) (comms.Bus, func() error, error) {
	if cfg.Bus.Driver == "nats" {
		nb, err := comms.NewNATSBus(cfg.Bus.URL, cfg.Bus.Prefix, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats %s: %w", cfg.Bus.URL, err)
		}
		return nb, nb.Close, nil
	}
	return comms.NewInMemoryBus(), func() error { return nil }, nil
}
