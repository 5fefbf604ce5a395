// Command sessionize turns an EDGAR-style access log into per-IP sessions.
//
//	sessionize [flags] <log> <inactivity_period> <output>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agent-racer/sessionizer/internal/config"
	"github.com/agent-racer/sessionizer/internal/logger"
	"github.com/agent-racer/sessionizer/internal/report"
	"github.com/agent-racer/sessionizer/internal/runner"
	"github.com/agent-racer/sessionizer/internal/stats"
)

const usage = "usage: sessionize [flags] <log> <inactivity_period> <output>"

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stderr)
	stop()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		exitErr(err)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("sessionize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath  = fs.String("config", "", "Path to YAML config file (optional)")
		logLevel    = fs.String("log-level", "", "Override log level: debug|info|warn|error")
		logFormat   = fs.String("log-format", "", "Override log format: text|json")
		sqlitePath  = fs.String("sqlite", "", "Also store sessions in this SQLite database")
		feedEnabled = fs.Bool("feed", false, "Serve completed sessions over a websocket feed")
		feedPort    = fs.Int("feed-port", -1, "Override feed port")
		statsDir    = fs.String("stats-dir", "", "Directory for cumulative run statistics")
		noStats     = fs.Bool("no-stats", false, "Do not record run statistics")
		showSummary = fs.Bool("summary", false, "Print a run summary to stderr")
	)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return errUsage
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *sqlitePath != "" {
		cfg.Output.SQLitePath = *sqlitePath
	}
	if *feedEnabled {
		cfg.Feed.Enabled = true
	}
	if *feedPort >= 0 {
		cfg.Feed.Port = *feedPort
	}
	if *statsDir != "" {
		cfg.Stats.Dir = *statsDir
	}
	if *noStats {
		cfg.Stats.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Log.SlogLevel()
	log := logger.New(
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
		logger.WithOutput(stderr),
		logger.WithAttr(slog.String("app", "sessionize")),
	)

	sum, err := runner.Run(ctx, runner.Options{
		LogPath:        fs.Arg(0),
		InactivityPath: fs.Arg(1),
		OutputPath:     fs.Arg(2),
		Config:         cfg,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	if !cfg.Stats.Disabled {
		store := stats.NewStore(cfg.Stats.Dir)
		if _, err := store.Append(sum.StatsRun(), cfg.Stats.History); err != nil {
			log.Warn("saving run stats", "path", store.Path(), "error", err)
		}
	}
	if *showSummary {
		if err := report.Render(stderr, sum); err != nil {
			log.Warn("rendering summary", "error", err)
		}
	}
	return nil
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
