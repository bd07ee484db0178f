package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/learner"
	"github.com/openclaw/smartroute/internal/quota"
	"github.com/openclaw/smartroute/internal/selector"
	"github.com/openclaw/smartroute/internal/store"
)

// RouteCommand handles `smartroute route`: a full quota-gated decision.
func RouteCommand(args []string, configPath string) int {
	return routeWith(args, configPath, false)
}

// TestCommand handles `smartroute test`: scoring without quota or persist.
func TestCommand(args []string, configPath string) int {
	return routeWith(args, configPath, true)
}

func routeWith(args []string, configPath string, dryRun bool) int {
	name := "route"
	if dryRun {
		name = "test"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner identity key (required)")
	prompt := fs.String("prompt", "", "Prompt text (required)")
	contextText := fs.String("context", "", "Additional context")
	force := fs.String("force", "", "Force a specific model")
	maxCost := fs.Float64("max-cost", 0, "Maximum acceptable cost in USD")
	exclude := fs.String("exclude", "", "Comma-separated model IDs to exclude")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" || *prompt == "" {
		fmt.Fprintf(os.Stderr, "Usage: smartroute %s --owner <key> --prompt <text> [--force <model>] [--max-cost <usd>] [--exclude <a,b>]\n", name)
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx := context.Background()
	budget := selector.StaticBudget{
		LimitUSD: e.cfg.Budget.DailyLimitUSD,
		SpentUSD: e.cfg.Budget.DailySpentUSD,
	}
	sel := selector.New(e.store, e.catalog, budget, e.logger)
	an := analyzer.New(e.cfg.Analyzer.LengthThreshold, e.logger)

	if !dryRun {
		gate := quota.New(e.store, e.cfg.Quota, e.cfg.Payment, nil, e.logger)
		st, err := gate.Consume(ctx, *owner)
		if err != nil {
			if errors.Is(err, quota.ErrQuotaExceeded) {
				fmt.Fprintln(os.Stderr, st.Message)
				return 1
			}
			return fail(err)
		}
	}

	opts := selector.Options{
		ForceModel: *force,
		MaxCostUSD: *maxCost,
		DryRun:     dryRun,
	}
	if *exclude != "" {
		opts.Exclude = strings.Split(*exclude, ",")
	}

	a := an.Analyze(analyzer.Request{Prompt: *prompt, Context: *contextText})
	return printJSON(sel.Select(ctx, *owner, a, opts))
}

// OutcomeCommand handles `smartroute outcome`: reporting a decision result.
func OutcomeCommand(args []string, configPath string) int {
	fs := flag.NewFlagSet("outcome", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner identity key (required)")
	id := fs.String("id", "", "Decision ID (required)")
	success := fs.Bool("success", true, "Whether the routed request succeeded")
	tokens := fs.Int("tokens", 0, "Actual total tokens used")
	cost := fs.Float64("cost", 0, "Actual cost in USD")
	quality := fs.Float64("quality", 0, "Quality score in [0,1]")
	latency := fs.Int64("latency-ms", 0, "Response latency in milliseconds")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *owner == "" || *id == "" {
		fmt.Fprintln(os.Stderr, "Usage: smartroute outcome --owner <key> --id <decision-id> [--success] [--tokens N] [--cost USD] [--quality Q] [--latency-ms MS]")
		return 1
	}

	e, err := openEnv(configPath)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	lr := learner.New(e.store, e.catalog, e.logger)
	d, err := lr.ReportOutcome(context.Background(), *owner, *id, store.Outcome{
		Success:      *success,
		ActualTokens: *tokens,
		ActualCost:   *cost,
		Quality:      *quality,
		LatencyMs:    *latency,
	})
	if err != nil {
		return fail(err)
	}
	return printJSON(d)
}
