// Package cli implements the smartroute subcommands. Commands operate on the
// store directly through the loaded config, mirroring the HTTP API; each
// returns a process exit code and writes errors to stderr.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/openclaw/smartroute/internal/catalog"
	"github.com/openclaw/smartroute/internal/config"
	"github.com/openclaw/smartroute/internal/store"
)

// env is the shared runtime handed to every subcommand.
type env struct {
	cfg     *config.Config
	store   *store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// openEnv loads config, opens the database, and loads the catalog.
func openEnv(configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// CLI output stays clean: log warnings and up to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &env{cfg: cfg, store: st, catalog: cat, logger: logger}, nil
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
}

// fail prints an error to stderr and returns exit code 1.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

// printJSON pretty-prints a value to stdout.
func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fail(err)
	}
	fmt.Println(string(data))
	return 0
}
