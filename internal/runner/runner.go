// Package runner wires a single sessionization run: it reads the threshold,
// streams the access log through the sessionizer and writes completed
// sessions to every configured sink.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agent-racer/sessionizer/internal/config"
	"github.com/agent-racer/sessionizer/internal/feed"
	"github.com/agent-racer/sessionizer/internal/logger"
	"github.com/agent-racer/sessionizer/internal/logparse"
	"github.com/agent-racer/sessionizer/internal/session"
	"github.com/agent-racer/sessionizer/internal/sink"
	"github.com/agent-racer/sessionizer/internal/stats"
)

const feedShutdownTimeout = 5 * time.Second

// Options are the inputs of one run. Config must not be nil.
type Options struct {
	LogPath        string
	InactivityPath string
	OutputPath     string

	Config *config.Config
	Logger *slog.Logger
	// RunID tags log lines, SQLite rows and stats. Generated when empty.
	RunID string
	// Sinks receive every record after the built-in sinks. Those that
	// implement io.Closer are closed when the run ends.
	Sinks []session.Sink
}

// Summary describes a completed run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	Elapsed    time.Duration
	LogPath    string
	OutputPath string
	SQLitePath string
	FeedAddr   string
	Threshold  time.Duration
	Lines      int
	Counters   session.Counters
	Skipped    map[logparse.Reason]int
	// LastSkip is the line number of the last skipped line, 0 when none.
	LastSkip       int
	LastSkipReason logparse.Reason
	Resources      stats.Resources
}

// SkippedTotal returns the number of log lines skipped by the parser.
// Backdated events are counted separately in Counters.
func (s *Summary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// StatsRun converts the summary into a stats history entry.
func (s *Summary) StatsRun() stats.Run {
	skipped := make(map[string]int, len(s.Skipped))
	for r, n := range s.Skipped {
		skipped[r.String()] = n
	}
	return stats.Run{
		ID:           s.RunID,
		StartedAt:    s.StartedAt,
		ElapsedMS:    s.Elapsed.Milliseconds(),
		LogPath:      s.LogPath,
		ThresholdSec: int64(s.Threshold / time.Second),
		Lines:        s.Lines,
		Events:       s.Counters.Events,
		Sessions:     s.Counters.Emitted(),
		Backdated:    s.Counters.Backdated,
		Skipped:      skipped,
		MaxOpen:      s.Counters.MaxOpen,
		LongestSec:   s.Counters.Longest.Duration,
		LongestIP:    s.Counters.Longest.IP,
		Resources:    s.Resources,
	}
}

// Run performs one sessionization pass. Any returned error is fatal for the
// run; the output file may then be incomplete.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Config == nil {
		return nil, errors.New("runner: nil config")
	}
	cfg := opts.Config
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("run_id", opts.RunID)

	sum := &Summary{
		RunID:      opts.RunID,
		StartedAt:  time.Now().UTC(),
		LogPath:    opts.LogPath,
		OutputPath: opts.OutputPath,
	}

	threshold, err := config.ReadInactivity(opts.InactivityPath)
	if err != nil {
		return nil, err
	}
	sum.Threshold = threshold

	// Open the log before touching the output so a bad log path leaves an
	// existing output file intact.
	in, err := os.Open(opts.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer in.Close()

	out, err := sink.CreateCSV(opts.OutputPath)
	if err != nil {
		return nil, err
	}
	pipeline := sink.NewMulti(out)
	closed := false
	defer func() {
		if !closed {
			_ = pipeline.Close()
		}
	}()

	if path := cfg.Output.SQLitePath; path != "" {
		db, err := sink.OpenSQLite(ctx, path, opts.RunID)
		if err != nil {
			return nil, err
		}
		pipeline.Add(db)
		sum.SQLitePath = path
	}

	var live *liveFeed
	if cfg.Feed.Enabled {
		live, err = startFeed(cfg.Feed, cfg.FeedAddr(), log)
		if err != nil {
			return nil, err
		}
		defer live.shutdown()
		pipeline.Add(live.broadcaster)
		sum.FeedAddr = live.addr
	}

	for _, s := range opts.Sinks {
		pipeline.Add(s)
	}

	z, err := session.New(threshold, pipeline, session.WithLogger(log))
	if err != nil {
		return nil, err
	}

	scanOpts := []logparse.Option{
		logparse.WithMaxLineBytes(cfg.Parser.MaxLineBytes),
		logparse.WithLogger(log),
	}
	if !cfg.Parser.SkipHeader {
		scanOpts = append(scanOpts, logparse.WithoutHeader())
	}
	sc := logparse.NewScanner(in, scanOpts...)

	log.Info("sessionizing", "log", opts.LogPath, "threshold", threshold, "output", opts.OutputPath)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("interrupted at line %d: %w", sc.Line(), err)
		}
		if _, err := z.Process(sc.Event()); err != nil {
			return nil, fmt.Errorf("line %d: %w", sc.Line(), err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if err := z.Flush(); err != nil {
		return nil, err
	}

	closed = true
	if err := pipeline.Close(); err != nil {
		return nil, fmt.Errorf("close output: %w", err)
	}

	sum.Lines = sc.Line()
	sum.Counters = z.Counters()
	sum.Skipped = sc.Skipped().Snapshot()
	if line, reason, ok := sc.Skipped().Last(); ok {
		sum.LastSkip, sum.LastSkipReason = line, reason
	}
	sum.Elapsed = time.Since(sum.StartedAt)
	if res, err := stats.SampleResources(); err != nil {
		log.Debug("resource sample unavailable", "error", err)
	} else {
		sum.Resources = res
	}

	log.Info("run complete",
		"events", sum.Counters.Events,
		"sessions", sum.Counters.Emitted(),
		"skipped", sum.SkippedTotal(),
		"backdated", sum.Counters.Backdated,
		"elapsed", sum.Elapsed,
	)

	if live != nil {
		live.broadcaster.Done(feed.DonePayload{
			RunID:    sum.RunID,
			Sessions: sum.Counters.Emitted(),
			Skipped:  sum.SkippedTotal() + sum.Counters.Backdated,
		})
		live.linger(ctx, cfg.Feed.Linger)
	}
	return sum, nil
}

type liveFeed struct {
	broadcaster *feed.Broadcaster
	server      *feed.Server
	addr        string
	logger      *slog.Logger
}

func startFeed(fc config.FeedConfig, addr string, log *slog.Logger) (*liveFeed, error) {
	privacy := fc.Privacy.NewPrivacyFilter()
	if !privacy.IsNoop() {
		log.Info("feed privacy filter active",
			"mask_ips", privacy.MaskIPs,
			"allowed_patterns", len(privacy.AllowedIPs),
			"blocked_patterns", len(privacy.BlockedIPs),
		)
	}
	b := feed.NewBroadcaster(fc.Recent, fc.MaxClients, privacy, log)
	srv := feed.NewServer(b, fc.AllowedOrigins, fc.Token, log)
	bound, err := srv.Start(addr)
	if err != nil {
		return nil, err
	}
	return &liveFeed{broadcaster: b, server: srv, addr: bound.String(), logger: log}, nil
}

// linger keeps the feed up for d after the run so late clients can still
// fetch the snapshot. It returns early when ctx is cancelled.
func (f *liveFeed) linger(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	f.logger.Info("feed lingering", "addr", f.addr, "for", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (f *liveFeed) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), feedShutdownTimeout)
	defer cancel()
	if err := f.server.Shutdown(ctx); err != nil {
		f.logger.Warn("feed shutdown", "error", err)
	}
}
