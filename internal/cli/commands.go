package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/openclaw/smartroute/internal/config"
	"github.com/openclaw/smartroute/internal/learner"
	"github.com/openclaw/smartroute/internal/quota"
	"github.com/openclaw/smartroute/internal/store"
	"github.com/openclaw/smartroute/internal/sweeper"
)

// StatsCommand handles `smartroute stats`.
func StatsCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner identity key (required)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "Usage: smartroute stats --owner <key>")
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx := context.Background()
	stats, err := e.store.Stats(ctx, *owner)
	if err != nil {
		return fail(err)
	}
	perf, err := e.store.ListPerformance(ctx, *owner)
	if err != nil {
		return fail(err)
	}
	return printJSON(map[string]any{
		"stats":       stats,
		"performance": perf,
	})
}

// PatternsCommand handles `smartroute patterns`.
func PatternsCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("patterns", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner identity key (required)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "Usage: smartroute patterns --owner <key>")
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	patterns, err := e.store.ListPatterns(context.Background(), *owner)
	if err != nil {
		return fail(err)
	}
	if patterns == nil {
		patterns = []*store.Pattern{}
	}
	return printJSON(patterns)
}

// SavingsCommand handles `smartroute savings`.
func SavingsCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("savings", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner identity key (required)")
	days := fs.Int("days", 0, "Window in days (default 30)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "Usage: smartroute savings --owner <key> [--days N]")
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	lr := learner.New(e.store, e.catalog, e.logger)
	report, err := lr.Savings(context.Background(), *owner, *days)
	if err != nil {
		return fail(err)
	}
	return printJSON(report)
}

// LicenseCommand handles `smartroute license`: show quota and tier state.
func LicenseCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("license", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner identity key (required)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "Usage: smartroute license --owner <key>")
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	gate := quota.New(e.store, e.cfg.Quota, e.cfg.Payment, nil, e.logger)
	st, err := gate.Check(context.Background(), *owner)
	if err != nil {
		return fail(err)
	}
	return printJSON(st)
}

// SubscribeCommand handles `smartroute subscribe`: verify a payment and
// upgrade to the pro tier. Without --tx it prints a payment quote.
func SubscribeCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner identity key (required)")
	tx := fs.String("tx", "", "Transaction hash of the settled payment")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "Usage: smartroute subscribe --owner <key> [--tx <hash>]")
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	gate := quota.New(e.store, e.cfg.Quota, e.cfg.Payment, nil, e.logger)
	if *tx == "" {
		return printJSON(gate.Quote(*owner))
	}

	token, st, err := gate.Subscribe(context.Background(), *owner, *tx)
	if err != nil {
		return fail(err)
	}
	return printJSON(map[string]any{
		"license": token,
		"quota":   st,
	})
}

// ModelsCommand handles `smartroute models`: list the catalog.
func ModelsCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	return printJSON(e.catalog.Models)
}

// InitCommand handles `smartroute init`: write a default config file.
func InitCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if _, err := os.Stat(configPath); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Config already exists at %s (use --force to overwrite)\n", configPath)
		return 1
	}

	cfg := config.Default()
	if err := cfg.Save(configPath); err != nil {
		return fail(err)
	}
	fmt.Printf("Wrote default config to %s\n", configPath)
	return 0
}

// SweepCommand handles `smartroute sweep`: run retention and decay once.
func SweepCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	sw := sweeper.New(e.store, e.cfg.Sweeper, e.logger)
	if err := sw.Sweep(context.Background()); err != nil {
		return fail(err)
	}
	fmt.Println("Sweep complete.")
	return 0
}
