package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/attunelabs/attune/internal/catalog"
	"github.com/attunelabs/attune/internal/coach"
	"github.com/attunelabs/attune/internal/config"
	"github.com/attunelabs/attune/internal/daemon"
	"github.com/attunelabs/attune/internal/engine"
	"github.com/attunelabs/attune/internal/queue"
	"github.com/attunelabs/attune/internal/repository"
	"github.com/attunelabs/attune/internal/storage/sqlite"
)

const (
	pidFileName = "attuned.pid"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Ensure ~/.attune directory exists
	attuneDir, err := config.EnsureAttuneDir()
	if err != nil {
		return fmt.Errorf("ensure attune dir: %w", err)
	}

	// Load configuration
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logging
	logLevel := parseLogLevel(cfg.Daemon.LogLevel)
	logFile, err := setupLogging(attuneDir, logLevel)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Write PID file
	pidPath := filepath.Join(attuneDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx := context.Background()

	// Topic catalog (a custom catalog in ~/.attune overrides the
	// embedded one)
	registry, err := loadCatalog(attuneDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	// Skill store
	store, audit, closeStore, err := openStore(ctx, cfg, registry)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	// Queue (optional): producer for skill-change events and async
	// submissions, consumer group for processing them
	var (
		conn      *queue.Connection
		producer  *queue.Producer
		publisher engine.EventPublisher
	)
	if cfg.Queue.Enabled {
		conn, err = queue.NewConnection(cfg.Queue.URL)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		defer conn.Close()
		producer = queue.NewProducer(conn)
		publisher = producer
	}

	svc := engine.NewService(store, registry, publisher, slog.Default())

	if conn != nil {
		consumer := queue.NewConsumer(conn, func(ctx context.Context, job *queue.SubmissionJob) error {
			_, err := svc.ProcessSubmission(ctx, job.ToSubmission())
			return err
		}, queue.ConsumerConfig{
			Workers:  cfg.Queue.Workers,
			Prefetch: cfg.Queue.Prefetch,
			Audit:    audit,
		})
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		defer consumer.Stop()
	}

	// Coach webhook (optional)
	var notifier *coach.Notifier
	if cfg.Coach.WebhookURL != "" {
		notifier = coach.NewNotifier(coach.Config{
			WebhookURL:    cfg.Coach.WebhookURL,
			Timeout:       time.Duration(cfg.Coach.TimeoutSeconds) * time.Second,
			RatePerSecond: cfg.Coach.RatePerSecond,
		})
	}

	server := daemon.NewServer(daemon.ServerConfig{
		Config:       cfg,
		SkillService: svc,
		Registry:     registry,
		Producer:     producer,
		Notifier:     notifier,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	// Start server
	if err := server.Start(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

// loadCatalog prefers ~/.attune/catalog.yaml over the embedded seed.
func loadCatalog(attuneDir string) (*catalog.Registry, error) {
	custom := filepath.Join(attuneDir, "catalog.yaml")
	if _, err := os.Stat(custom); err == nil {
		return catalog.LoadFile(custom)
	}
	return catalog.LoadDefault()
}

// openStore builds the configured skill store. For Postgres it also
// syncs the topic catalog into the topics table and returns the
// submission audit log for the queue consumer.
func openStore(ctx context.Context, cfg *config.LocalConfig, registry *catalog.Registry) (engine.SkillStore, queue.AuditLogger, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		path, err := cfg.SQLitePath()
		if err != nil {
			return nil, nil, nil, err
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return sqlite.NewSkillStore(db), nil, func() { db.Close() }, nil

	case "postgres":
		dsn := cfg.Storage.PostgresURL
		if err := repository.Migrate(ctx, dsn); err != nil {
			return nil, nil, nil, err
		}
		pool, err := repository.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := repository.NewTopicRepository(sqlDB).Sync(ctx, registry.All()); err != nil {
			sqlDB.Close()
			pool.Close()
			return nil, nil, nil, fmt.Errorf("sync topics: %w", err)
		}
		closer := func() {
			sqlDB.Close()
			pool.Close()
		}
		return repository.NewSkillRepository(pool), repository.NewSubmissionRepository(sqlDB), closer, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
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

func setupLogging(attuneDir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(attuneDir, "logs", "attuned.log")

	// Create log file
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// Create handler that writes to both stdout and file
	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: level,
	})

	// Also log to stderr for foreground mode
	multiHandler := &multiHandler{
		handlers: []slog.Handler{
			handler,
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}),
		},
	}

	slog.SetDefault(slog.New(multiHandler))

	return logFile, nil
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
