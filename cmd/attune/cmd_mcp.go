package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/attunelabs/attune/internal/catalog"
	"github.com/attunelabs/attune/internal/config"
	"github.com/attunelabs/attune/internal/engine"
	mcpserver "github.com/attunelabs/attune/internal/mcp"
	"github.com/attunelabs/attune/internal/storage/sqlite"
)

// cmdMCP starts the MCP server for editor integration
func cmdMCP() error {
	// Load configuration
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// MCP runs over stdio; keep slog off stdout
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	attuneDir, err := config.EnsureAttuneDir()
	if err != nil {
		return fmt.Errorf("ensure attune dir: %w", err)
	}

	// Topic catalog (custom catalog overrides the embedded one)
	registry, err := loadMCPCatalog(attuneDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	// MCP always uses the local SQLite store; it shares the database
	// with a local daemon but never needs one running.
	path, err := cfg.SQLitePath()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	svc := engine.NewService(sqlite.NewSkillStore(db), registry, nil, slog.Default())

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		SkillService: svc,
		Registry:     registry,
	})

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Serve on stdio
	return mcpSrv.ServeStdio(ctx)
}

func loadMCPCatalog(attuneDir string) (*catalog.Registry, error) {
	custom := filepath.Join(attuneDir, "catalog.yaml")
	if _, err := os.Stat(custom); err == nil {
		return catalog.LoadFile(custom)
	}
	return catalog.LoadDefault()
}
