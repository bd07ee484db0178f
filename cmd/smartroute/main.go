package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/api"
	"github.com/openclaw/smartroute/internal/catalog"
	"github.com/openclaw/smartroute/internal/cli"
	"github.com/openclaw/smartroute/internal/config"
	"github.com/openclaw/smartroute/internal/events"
	"github.com/openclaw/smartroute/internal/learner"
	"github.com/openclaw/smartroute/internal/quota"
	"github.com/openclaw/smartroute/internal/selector"
	"github.com/openclaw/smartroute/internal/store"
	"github.com/openclaw/smartroute/internal/sweeper"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
)

// App holds the runtime components of the server process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.Store
	Catalog   *catalog.Catalog
	Analyzer  *analyzer.Analyzer
	Selector  *selector.Selector
	Learner   *learner.Learner
	Gate      *quota.Gate
	Bus       *events.Bus
	APIServer *api.Server
	Sweeper   *sweeper.Sweeper
	MQTT      *events.MQTTPublisher
}

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	configPath := "smartroute.json"
	var subCmd string
	var subCmdIdx int

	// First pass: find the config flag so subcommands share it.
	skipNext := false
	for i := 1; i < len(os.Args); i++ {
		if skipNext {
			skipNext = false
			continue
		}
		arg := os.Args[i]
		if arg == "--config" || arg == "-config" {
			if i+1 < len(os.Args) {
				configPath = os.Args[i+1]
				skipNext = true
			}
		}
	}

	// Second pass: find the subcommand (first non-flag arg).
	skipNext = false
	for i := 1; i < len(os.Args); i++ {
		if skipNext {
			skipNext = false
			continue
		}
		arg := os.Args[i]
		if arg == "--config" || arg == "-config" {
			skipNext = true
			continue
		}
		if arg == "--version" || arg == "-version" {
			continue
		}
		if len(arg) > 0 && arg[0] != '-' {
			subCmd = arg
			subCmdIdx = i
			break
		}
	}

	if subCmd != "" {
		rest := os.Args[subCmdIdx+1:]
		switch subCmd {
		case "route":
			return cli.RouteCommand(rest, configPath)
		case "test":
			return cli.TestCommand(rest, configPath)
		case "outcome":
			return cli.OutcomeCommand(rest, configPath)
		case "stats":
			return cli.StatsCommand(rest, configPath)
		case "patterns":
			return cli.PatternsCommand(rest, configPath)
		case "savings":
			return cli.SavingsCommand(rest, configPath)
		case "license":
			return cli.LicenseCommand(rest, configPath)
		case "subscribe":
			return cli.SubscribeCommand(rest, configPath)
		case "models":
			return cli.ModelsCommand(rest, configPath)
		case "init":
			return cli.InitCommand(rest, configPath)
		case "sweep":
			return cli.SweepCommand(rest, configPath)
		case "serve":
			// Falls through to the normal server start below.
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", subCmd)
			fmt.Fprintln(os.Stderr, "Available commands: serve, route, test, outcome, stats, patterns, savings, license, subscribe, models, init, sweep")
			return 1
		}
	}

	fs := flag.NewFlagSet("smartroute", flag.ExitOnError)
	configPathFlag := fs.String("config", "smartroute.json", "Path to config file")
	showVersion := fs.Bool("version", false, "Show version")
	if err := fs.Parse(stripSubcommand(os.Args[1:], subCmd)); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Printf("smartroute v%s (built %s)\n", version, buildTime)
		fmt.Println("Cost-aware LLM model router with pattern learning")
		return 0
	}

	if *configPathFlag != "smartroute.json" {
		configPath = *configPathFlag
	}

	app, err := setup(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	defer app.Store.Close()

	printBanner(app)

	if err := serve(app); err != nil {
		app.Logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

// stripSubcommand removes an explicit "serve" token so flag parsing sees only
// flags.
func stripSubcommand(args []string, subCmd string) []string {
	if subCmd == "" {
		return args
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == subCmd {
			continue
		}
		out = append(out, a)
	}
	return out
}

// setup initializes all application components.
func setup(configPath string) (*App, error) {
	app := &App{}

	app.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app.Config = cfg

	// Recreate logger at the configured level.
	app.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	app.Logger.Info("starting smartroute",
		"version", version,
		"config", configPath,
	)

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.Store = st

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	app.Catalog = cat

	app.Analyzer = analyzer.New(cfg.Analyzer.LengthThreshold, app.Logger)

	budget := selector.StaticBudget{
		LimitUSD: cfg.Budget.DailyLimitUSD,
		SpentUSD: cfg.Budget.DailySpentUSD,
	}
	app.Selector = selector.New(st, cat, budget, app.Logger)
	app.Learner = learner.New(st, cat, app.Logger)
	app.Gate = quota.New(st, cfg.Quota, cfg.Payment, nil, app.Logger)
	app.Bus = events.NewBus(app.Logger)

	app.APIServer = api.NewServer(
		cfg.Server.Port,
		app.Analyzer,
		app.Selector,
		app.Learner,
		app.Gate,
		app.Store,
		app.Catalog,
		app.Bus,
		app.Logger,
	)

	if cfg.Sweeper.Enabled {
		app.Sweeper = sweeper.New(st, cfg.Sweeper, app.Logger)
	}

	if cfg.MQTT.Enabled {
		app.MQTT = events.NewMQTTPublisher(cfg.MQTT, app.Logger)
	}

	return app, nil
}

// serve runs the API server and background services until a signal arrives.
func serve(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.APIServer.Start(ctx)
	})

	if app.Sweeper != nil {
		g.Go(func() error {
			return app.Sweeper.Start(ctx)
		})
	}

	if app.MQTT != nil {
		if err := app.MQTT.Connect(); err != nil {
			// The broker being down must not block routing.
			app.Logger.Warn("mqtt connect failed, events stay local", "error", err)
		} else {
			ch, cancel := app.Bus.Subscribe()
			g.Go(func() error {
				defer app.MQTT.Close()
				defer cancel()
				go app.MQTT.Run(ch)
				<-ctx.Done()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	app.Logger.Info("smartroute stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(app *App) {
	fmt.Println()
	fmt.Printf("  smartroute v%s\n", version)
	fmt.Println("  Cost-aware LLM routing with pattern learning")
	fmt.Println()
	fmt.Printf("  API:    http://localhost:%d\n", app.Config.Server.Port)
	fmt.Printf("  Models: %d in catalog\n", len(app.Catalog.Models))
	fmt.Println()
}
