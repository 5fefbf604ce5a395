// Package stats keeps cumulative statistics across sessionization runs.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// statsVersion is bumped when the schema changes.
	statsVersion = 1

	statsFileName = "stats.json"
	appDirName    = "sessionizer"
)

// Run describes one completed sessionization run.
type Run struct {
	ID           string         `json:"id"`
	StartedAt    time.Time      `json:"startedAt"`
	ElapsedMS    int64          `json:"elapsedMs"`
	LogPath      string         `json:"logPath"`
	ThresholdSec int64          `json:"thresholdSec"`
	Lines        int            `json:"lines"`
	Events       int            `json:"events"`
	Sessions     int            `json:"sessions"`
	Backdated    int            `json:"backdated"`
	Skipped      map[string]int `json:"skipped,omitempty"`
	MaxOpen      int            `json:"maxOpen"`
	LongestSec   int64          `json:"longestSec"`
	LongestIP    string         `json:"longestIp,omitempty"`
	Resources    Resources      `json:"resources"`
}

// SkippedTotal sums the per-reason skip counts of the run.
func (r Run) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// Stats is the persistent aggregate over all runs. It is loaded from and
// saved to ~/.local/state/sessionizer/stats.json (respecting XDG_STATE_HOME).
type Stats struct {
	Version int `json:"version"`

	// Aggregate counters
	TotalRuns      int            `json:"totalRuns"`
	TotalLines     int            `json:"totalLines"`
	TotalEvents    int            `json:"totalEvents"`
	TotalSessions  int            `json:"totalSessions"`
	TotalBackdated int            `json:"totalBackdated"`
	SkippedByKind  map[string]int `json:"skippedByKind"`

	// All-time highs
	MaxSessionDurationSec int64  `json:"maxSessionDurationSec"`
	MaxSessionIP          string `json:"maxSessionIp,omitempty"`
	MaxConcurrentOpen     int    `json:"maxConcurrentOpen"`
	MaxPeakRSSBytes       uint64 `json:"maxPeakRssBytes"`

	LastRunID string `json:"lastRunId,omitempty"`
	// Most recent first.
	Runs []Run `json:"runs"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// Record folds run into the aggregate and keeps at most history runs. A
// non-positive history keeps none.
func (st *Stats) Record(run Run, history int) {
	st.TotalRuns++
	st.TotalLines += run.Lines
	st.TotalEvents += run.Events
	st.TotalSessions += run.Sessions
	st.TotalBackdated += run.Backdated
	for kind, n := range run.Skipped {
		st.SkippedByKind[kind] += n
	}

	if run.LongestSec > st.MaxSessionDurationSec {
		st.MaxSessionDurationSec = run.LongestSec
		st.MaxSessionIP = run.LongestIP
	}
	st.MaxConcurrentOpen = max(st.MaxConcurrentOpen, run.MaxOpen)
	st.MaxPeakRSSBytes = max(st.MaxPeakRSSBytes, run.Resources.RSSBytes)
	st.LastRunID = run.ID

	if history <= 0 {
		st.Runs = nil
		return
	}
	runs := make([]Run, 0, min(len(st.Runs)+1, history))
	runs = append(runs, run)
	for _, r := range st.Runs {
		if len(runs) == history {
			break
		}
		runs = append(runs, r)
	}
	st.Runs = runs
}

// Store handles loading and saving Stats to disk.
type Store struct {
	dir string // directory containing stats.json
}

// NewStore creates a Store that reads and writes stats in dir. The directory
// is created on the first Save. An empty dir selects the XDG state path.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultStatsDir()
	}
	return &Store{dir: dir}
}

// Path returns the full path to the stats file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, statsFileName)
}

// Load reads stats from disk. A missing file yields empty Stats.
func (s *Store) Load() (*Stats, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return newStats(), nil
		}
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	var st Stats
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing stats: %w", err)
	}
	if st.SkippedByKind == nil {
		st.SkippedByKind = make(map[string]int)
	}
	return &st, nil
}

// Save writes stats using a temp file in the same directory and a rename,
// so readers never see a partial file.
func (s *Store) Save(st *Stats) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating stats dir: %w", err)
	}

	st.Version = statsVersion
	st.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".stats-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming stats file: %w", err)
	}
	committed = true
	return nil
}

// Append loads the stored stats, records run and saves the result.
func (s *Store) Append(run Run, history int) (*Stats, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	st.Record(run, history)
	if err := s.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}

func newStats() *Stats {
	return &Stats{
		Version:       statsVersion,
		SkippedByKind: make(map[string]int),
	}
}

// defaultStatsDir returns ~/.local/state/sessionizer, respecting
// XDG_STATE_HOME if set.
func defaultStatsDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
