// Package main is the entry point for the position liquidation engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farshadfahimi/sellerbot/internal/alerting"
	"github.com/farshadfahimi/sellerbot/internal/broker"
	"github.com/farshadfahimi/sellerbot/internal/broker/phoenix"
	"github.com/farshadfahimi/sellerbot/internal/broker/sim"
	"github.com/farshadfahimi/sellerbot/internal/config"
	"github.com/farshadfahimi/sellerbot/internal/metrics"
	"github.com/farshadfahimi/sellerbot/internal/persistence"
	"github.com/farshadfahimi/sellerbot/internal/session"
	"github.com/farshadfahimi/sellerbot/internal/types"
	"github.com/farshadfahimi/sellerbot/internal/ui"
	"github.com/farshadfahimi/sellerbot/internal/watcher"
)

// Version information (set by build flags).
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse command
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Sellerbot - Autonomous Position Liquidation for TSE

Usage:
  sellerbot <command> [options]

Commands:
  run        Start the liquidation engine
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  sellerbot run --config config.yaml
  sellerbot run --config config.yaml --sim
  sellerbot validate --config config.yaml

Use "sellerbot <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("sellerbot version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Watchers: %d\n", len(cfg.Watchers))
	for _, w := range cfg.Watchers {
		fmt.Printf("    %s@%s:%s (min buy volume %d, discount %s)\n",
			w.Account, w.Broker, w.ISIN,
			cfg.MinBuyVolumeFor(w), cfg.SellDiscountFor(w))
	}
	fmt.Printf("  Broker: %s\n", cfg.Broker.Type)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval())
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	simMode := fs.Bool("sim", false, "Use the simulated broker regardless of config")
	verbose := fs.Bool("verbose", false, "Verbose output")
	noUI := fs.Bool("no-ui", false, "Disable the live status display")
	fs.Parse(args)

	// Setup structured logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *simMode {
		cfg.Broker.Type = "sim"
	}

	boundaries, err := cfg.SessionBoundaries()
	if err != nil {
		slog.Error("invalid session boundaries", "err", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid timezone", "err", err)
		os.Exit(1)
	}
	clock := session.NewClock(boundaries, loc)

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("sellerbot starting",
		"version", Version,
		"broker", cfg.Broker.Type,
		"watchers", len(cfg.Watchers),
		"phase", clock.Phase().String(),
	)

	// Journal
	var journal persistence.Journal
	if cfg.Persistence.Enabled {
		j, err := persistence.NewSQLiteJournal(cfg.Persistence.Path)
		if err != nil {
			slog.Error("failed to open journal", "err", err)
			os.Exit(1)
		}
		defer func() { _ = j.Close() }()
		journal = j
	}

	// Alerting
	alerter, telegram := buildAlerter(cfg, logger)

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(metrics.ServerConfig{
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
			HealthPath:  "/health",
		}, logger)
		_ = metricsServer.Start()
	}

	// Broker factory
	factory, err := buildFactory(cfg, logger)
	if err != nil {
		slog.Error("failed to build broker factory", "err", err)
		os.Exit(1)
	}

	// Supervisor and watchers
	supervisor := watcher.NewSupervisor(clock, factory, alerter, journal, logger)
	if metricsServer != nil {
		metricsServer.RegisterHealthCheck("watchers", func() metrics.Check {
			if supervisor.Running() == 0 {
				return metrics.Check{Status: "unhealthy", Message: "no watchers running"}
			}
			return metrics.Check{Status: "healthy"}
		})
	}

	started := 0
	for _, w := range cfg.Watchers {
		wcfg := watcher.Config{
			Account:          w.Account,
			Broker:           w.Broker,
			ISIN:             w.ISIN,
			MinBuyVolume:     cfg.MinBuyVolumeFor(w),
			SellDiscount:     cfg.SellDiscountFor(w),
			PollInterval:     cfg.PollInterval(),
			RepriceTolerance: cfg.RepriceTolerance(),
		}
		if err := supervisor.Start(ctx, wcfg); err != nil {
			slog.Error("failed to start watcher", "watcher", wcfg.Key(), "err", err)
			continue
		}
		started++
	}
	if started == 0 {
		slog.Error("no watchers started")
		os.Exit(1)
	}

	if alerter != nil {
		_ = alerting.Emit(ctx, alerter, alerting.EventEngineStarted, "Liquidation engine started",
			"watchers", started,
			"phase", clock.Phase().String(),
		)
	}

	runLoop(ctx, supervisor, !*noUI)

	slog.Info("shutdown signal received")
	supervisor.StopAll()

	if alerter != nil {
		shutdownAlertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = alerting.Emit(shutdownAlertCtx, alerter, alerting.EventEngineStopped, "Liquidation engine stopped")
		cancel()
	}

	sendSummary(clock, supervisor, telegram, logger)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	slog.Info("sellerbot shutdown complete")
}

// runLoop blocks until shutdown, refreshing the status display when stdout
// is a terminal.
func runLoop(ctx context.Context, supervisor *watcher.Supervisor, wantUI bool) {
	if !wantUI || !ui.IsTerminal() {
		<-ctx.Done()
		return
	}

	display := ui.NewStatusUI()
	display.Start()
	defer display.Stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			display.Render(supervisor.Status())
		}
	}
}

// buildAlerter assembles the alert channels from config. The Telegram
// alerter is returned separately for the end-of-session summary.
func buildAlerter(cfg *config.Config, logger *slog.Logger) (alerting.Alerter, *alerting.TelegramAlerter) {
	if !cfg.Alerting.Enabled {
		return alerting.NewConsoleAlerter(logger), nil
	}

	multi := alerting.NewMultiAlerter(logger)
	var telegram *alerting.TelegramAlerter

	for _, ch := range cfg.Alerting.Channels {
		switch ch.Type {
		case "telegram":
			telegram = alerting.NewTelegramAlerter(alerting.TelegramConfig{
				BotToken: ch.BotToken,
				ChatID:   ch.ChatID,
			})
			multi.AddAlerter(telegram)
		case "console":
			multi.AddAlerter(alerting.NewConsoleAlerter(logger))
		default:
			logger.Warn("unknown alert channel type", "type", ch.Type)
		}
	}

	// Only events listed under alerting.events reach the channels.
	multi.SetEventFilter(func(event alerting.AlertEvent) bool {
		return cfg.IsAlertEventEnabled(string(event))
	})
	return multi, telegram
}

// buildFactory returns the broker client factory for the configured
// transport.
func buildFactory(cfg *config.Config, logger *slog.Logger) (broker.Factory, error) {
	switch cfg.Broker.Type {
	case "sim":
		client := sim.New(logger)
		return func(ctx context.Context, account broker.Account) (broker.Client, error) {
			return client, nil
		}, nil

	case "phoenix":
		return func(ctx context.Context, account broker.Account) (broker.Client, error) {
			code, err := phoenix.ParseCode(account.Broker)
			if err != nil {
				return nil, err
			}
			token, ok := cfg.TokenFor(account.Username, account.Broker)
			if !ok {
				return nil, fmt.Errorf("%w: no token for %s@%s", types.ErrInvalidConfig, account.Username, account.Broker)
			}
			return phoenix.NewClient(phoenix.Config{
				Code:              code,
				Username:          account.Username,
				Tokens:            phoenix.StaticToken(token),
				Timeout:           cfg.RequestTimeout(),
				RequestsPerSecond: cfg.Execution.RateLimitPerSecond,
			}, logger)
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown broker type %q", types.ErrInvalidConfig, cfg.Broker.Type)
	}
}

// sendSummary pushes the end-of-session liquidation summary to Telegram.
func sendSummary(clock *session.Clock, supervisor *watcher.Supervisor, telegram *alerting.TelegramAlerter, logger *slog.Logger) {
	statuses := supervisor.Status()

	summaries := make([]alerting.WatcherSummary, 0, len(statuses))
	for _, st := range statuses {
		summaries = append(summaries, alerting.WatcherSummary{
			Key:       st.Key,
			ISIN:      st.ISIN,
			Target:    st.Target,
			Sold:      st.SoldSoFar,
			Remaining: st.Target - st.SoldSoFar,
			State:     st.State.String(),
		})
	}
	summary := alerting.NewSessionSummary(clock.Now(), summaries)

	logger.Info("session summary",
		"target", summary.TotalTarget,
		"sold", summary.TotalSold,
		"completed", summary.Completed,
		"incomplete", summary.Incomplete,
	)

	if telegram == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := telegram.SendSessionSummary(ctx, summary); err != nil {
		logger.Warn("failed to send session summary", "err", err)
	}
}
