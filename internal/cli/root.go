// Package cli implements the engram CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/engram-memory/engram/internal/config"
	"github.com/engram-memory/engram/internal/store"
	"github.com/spf13/cobra"
)

var (
	dbPath      string
	sessionFlag string
	seedCollab  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Persistent narrative memory for AI agents",
	Long:  "Stores typed memory records in SQLite and reconstructs a prioritized narrative across sessions. Includes a two-role message relay.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $ENGRAM_DB_PATH or ~/.engram/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "Session identifier (default: $ENGRAM_SESSION_ID)")
	RootCmd.PersistentFlags().BoolVar(&seedCollab, "seed-collaborator", false, "Create the collaborator tables locally (development only)")
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if sessionFlag != "" {
		cfg.SessionID = sessionFlag
	}
	return cfg
}

// openStore opens the store and waits for the collaborator schema.
func openStore(ctx context.Context, cfg *config.Config) *store.SQLiteStore {
	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		exitErr("open store", err)
	}
	if seedCollab {
		if err := s.SeedCollaboratorSchema(ctx); err != nil {
			exitErr("seed collaborator schema", err)
		}
	}
	if err := s.WaitForReady(ctx, cfg.ReadyTimeout, cfg.PollInterval); err != nil {
		exitErr("wait for storage", err)
	}
	return s
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
