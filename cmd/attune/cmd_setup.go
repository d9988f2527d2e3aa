package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/attunelabs/attune/internal/config"
)

// cmdInit initializes Attune for first-time use
func cmdInit() error {
	fmt.Println("Attune - First-Time Setup")
	fmt.Println("=========================")
	fmt.Println()

	// 1. Create directory structure
	fmt.Print("Creating ~/.attune directory structure... ")
	attuneDir, err := config.EnsureAttuneDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	// 2. Create default config if it doesn't exist
	configPath := filepath.Join(attuneDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	// 3. Create the local user identity
	fmt.Print("Creating local user identity... ")
	userID, created, err := ensureLocalUser()
	if err != nil {
		return fmt.Errorf("create user identity: %w", err)
	}
	if created {
		fmt.Println("✓")
	} else {
		fmt.Println("already exists ✓")
	}

	// 4. Summary
	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Printf("Local user: %s\n", userID)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. attune start         # Start the daemon")
	fmt.Println("  2. attune topics list   # See the topic catalog")
	fmt.Println("  3. attune skills        # Track your ratings")
	fmt.Println()
	fmt.Println("For IDE integration:")
	fmt.Println("  - Cursor: Configure MCP with 'attune mcp' command")

	return nil
}

// cmdConfig shows the current configuration
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	attuneDir, err := config.AttuneDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	fmt.Printf("Config file: %s\n\n", filepath.Join(attuneDir, "config.yaml"))
	fmt.Print(string(data))
	return nil
}

// localUser returns the stable local user UUID, creating it on first
// use. Local mode is single-user; server mode passes explicit user IDs.
func localUser() (uuid.UUID, error) {
	id, _, err := ensureLocalUser()
	return id, err
}

func ensureLocalUser() (uuid.UUID, bool, error) {
	attuneDir, err := config.EnsureAttuneDir()
	if err != nil {
		return uuid.Nil, false, err
	}

	userPath := filepath.Join(attuneDir, "user")
	data, err := os.ReadFile(userPath)
	if err == nil {
		id, err := uuid.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("parse user id in %s: %w", userPath, err)
		}
		return id, false, nil
	}
	if !os.IsNotExist(err) {
		return uuid.Nil, false, fmt.Errorf("read user id: %w", err)
	}

	id := uuid.New()
	if err := os.WriteFile(userPath, []byte(id.String()+"\n"), 0644); err != nil {
		return uuid.Nil, false, fmt.Errorf("write user id: %w", err)
	}
	return id, true, nil
}

// resolveUser picks the user for a command: an explicit --user flag
// value if given, the stable local identity otherwise.
func resolveUser(flagValue string) (uuid.UUID, error) {
	if flagValue != "" {
		id, err := uuid.Parse(flagValue)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid user id %q: %w", flagValue, err)
		}
		return id, nil
	}
	return localUser()
}
