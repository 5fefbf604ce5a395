package stats

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_DefaultDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/tmp/state")
	s := NewStore("")
	assert.Equal(t, filepath.Join("/var/tmp/state", appDirName), s.dir)
}

func TestNewStore_HomeFallback(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	s := NewStore("")
	assert.Equal(t, appDirName, filepath.Base(s.dir))
}

func TestStore_Path(t *testing.T) {
	s := NewStore("/tmp/test-dir")
	assert.Equal(t, "/tmp/test-dir/stats.json", s.Path())
}

func TestStore_LoadMissing(t *testing.T) {
	st, err := NewStore(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, statsVersion, st.Version)
	assert.NotNil(t, st.SkippedByKind)
	assert.Zero(t, st.TotalRuns)
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, statsFileName), []byte("{not json"), 0o600))

	_, err := NewStore(dir).Load()
	assert.Error(t, err)
}

func TestStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewStore(dir)

	st := newStats()
	st.Record(Run{
		ID:         "r1",
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Events:     10,
		Sessions:   4,
		Skipped:    map[string]int{"invalid_ip": 2},
		MaxOpen:    3,
		LongestSec: 42,
		LongestIP:  "10.0.0.1",
	}, 5)
	require.NoError(t, s.Save(st))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only stats.json may remain in the dir")

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalRuns)
	assert.Equal(t, 10, got.TotalEvents)
	assert.Equal(t, 4, got.TotalSessions)
	assert.Equal(t, 2, got.SkippedByKind["invalid_ip"])
	assert.Equal(t, "r1", got.LastRunID)
	assert.False(t, got.LastUpdated.IsZero(), "LastUpdated should be set by Save")
	require.Len(t, got.Runs, 1)
	assert.True(t, got.Runs[0].StartedAt.Equal(st.Runs[0].StartedAt))
}

func TestStats_RecordPeaks(t *testing.T) {
	st := newStats()
	st.Record(Run{ID: "a", LongestSec: 100, LongestIP: "1.1.1.1", MaxOpen: 7}, 10)
	st.Record(Run{ID: "b", LongestSec: 50, LongestIP: "2.2.2.2", MaxOpen: 9}, 10)

	assert.Equal(t, int64(100), st.MaxSessionDurationSec)
	assert.Equal(t, "1.1.1.1", st.MaxSessionIP)
	assert.Equal(t, 9, st.MaxConcurrentOpen)
	assert.Equal(t, "b", st.LastRunID)
}

func TestStats_RecordHistoryBound(t *testing.T) {
	tests := []struct {
		name    string
		history int
		want    []string
	}{
		{"bounded", 2, []string{"r3", "r2"}},
		{"roomy", 10, []string{"r3", "r2", "r1"}},
		{"disabled", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStats()
			for _, id := range []string{"r1", "r2", "r3"} {
				st.Record(Run{ID: id}, tt.history)
			}
			var got []string
			for _, r := range st.Runs {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 3, st.TotalRuns)
		})
	}
}

func TestStore_Append(t *testing.T) {
	s := NewStore(t.TempDir())
	for i := 0; i < 3; i++ {
		_, err := s.Append(Run{ID: "r", Events: 5}, 2)
		require.NoError(t, err)
	}
	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 15, st.TotalEvents)
	assert.Len(t, st.Runs, 2)
}

func TestRun_SkippedTotal(t *testing.T) {
	r := Run{Skipped: map[string]int{"null_field": 1, "invalid_ip": 3}}
	assert.Equal(t, 4, r.SkippedTotal())
}

func TestSampleResources(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process inspection not supported on " + runtime.GOOS)
	}
	res, err := SampleResources()
	require.NoError(t, err)
	assert.NotZero(t, res.RSSBytes)
	assert.Greater(t, res.Threads, int32(0))
}
