package logparse

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-racer/sessionizer/internal/session"
)

const header = "ip,date,time,zone,cik,accession,extention,code,size,idx,norefer,noagent,find,crawler,browser"

func logOf(lines ...string) string {
	return strings.Join(append([]string{header}, lines...), "\n") + "\n"
}

func collect(t *testing.T, sc *Scanner) []session.Event {
	t.Helper()
	var events []session.Event
	for sc.Scan() {
		events = append(events, sc.Event())
	}
	return events
}

func TestScanner_SkipsHeaderAndInvalidLines(t *testing.T) {
	input := logOf(
		"101.81.133.jja,2017-06-30,00:00:00,0.0,1608552.0,0001047469-17-004337,-index.htm,200.0,80251.0,1.0,0.0,0.0,9.0,0.0,",
		"bad.ip,2017-06-30,00:00:01,0.0,1608552.0,0001047469-17-004337,-index.htm,200.0,80251.0,1.0,0.0,0.0,9.0,0.0,",
		"107.23.85.jfd,2017-06-30,00:00:01,0.0,1027281.0,0000898430-02-001167,-index.htm,200.0,2825.0,1.0,0.0,0.0,10.0,0.0,",
		"107.23.85.jfd,,00:00:02,0.0,1027281.0,0000898430-02-001167,-index.htm,200.0,2825.0,1.0,0.0,0.0,10.0,0.0,",
	)

	sc := NewScanner(strings.NewReader(input))
	events := collect(t, sc)
	require.NoError(t, sc.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "101.81.133.jja", events[0].IP)
	assert.Equal(t, "107.23.85.jfd", events[1].IP)
	assert.Equal(t, time.Date(2017, 6, 30, 0, 0, 1, 0, time.UTC), events[1].Time)

	tally := sc.Skipped()
	assert.Equal(t, 2, tally.Total())
	assert.Equal(t, 1, tally.Count(ReasonIP))
	assert.Equal(t, 1, tally.Count(ReasonNull))

	line, reason, ok := tally.Last()
	assert.True(t, ok)
	assert.Equal(t, 5, line)
	assert.Equal(t, ReasonNull, reason)
	assert.Equal(t, 5, sc.Line())
}

func TestScanner_ColumnCountIsFatal(t *testing.T) {
	input := logOf(
		"101.81.133.jja,2017-06-30,00:00:00,0.0,1608552.0,0001047469-17-004337,-index.htm,200.0,80251.0,1.0,0.0,0.0,9.0,0.0,",
		"101.81.133.jja,2017-06-30,00:00:01",
		"107.23.85.jfd,2017-06-30,00:00:01,0.0,1027281.0,0000898430-02-001167,-index.htm,200.0,2825.0,1.0,0.0,0.0,10.0,0.0,",
	)

	sc := NewScanner(strings.NewReader(input))
	events := collect(t, sc)

	assert.Len(t, events, 1)
	require.Error(t, sc.Err())
	assert.ErrorIs(t, sc.Err(), ErrColumnCount)
	assert.Contains(t, sc.Err().Error(), "line 3")
	assert.False(t, sc.Scan(), "Scan must stay false after a fatal error")
}

func TestScanner_BlankLineIsFatal(t *testing.T) {
	input := logOf(
		"101.81.133.jja,2017-06-30,00:00:00,0.0,1608552.0,0001047469-17-004337,-index.htm,200.0,80251.0,1.0,0.0,0.0,9.0,0.0,",
		"",
		"107.23.85.jfd,2017-06-30,00:00:01,0.0,1027281.0,0000898430-02-001167,-index.htm,200.0,2825.0,1.0,0.0,0.0,10.0,0.0,",
	)

	sc := NewScanner(strings.NewReader(input))
	events := collect(t, sc)

	assert.Len(t, events, 1)
	require.Error(t, sc.Err())
	assert.ErrorIs(t, sc.Err(), ErrColumnCount)
	assert.Contains(t, sc.Err().Error(), "line 3")
	assert.Equal(t, 0, sc.Skipped().Total())
}

func TestScanner_WithoutHeader(t *testing.T) {
	input := "10.0.0.abc,2017-06-30,00:00:00,,1.0,acc,ext,,,,,,,,\n"

	withHeader := NewScanner(strings.NewReader(input))
	assert.Empty(t, collect(t, withHeader))

	noHeader := NewScanner(strings.NewReader(input), WithoutHeader())
	assert.Len(t, collect(t, noHeader), 1)
	assert.NoError(t, noHeader.Err())
}

func TestScanner_EmptyInput(t *testing.T) {
	sc := NewScanner(strings.NewReader(""))
	assert.False(t, sc.Scan())
	assert.NoError(t, sc.Err())
	assert.Equal(t, 0, sc.Skipped().Total())
	_, _, ok := sc.Skipped().Last()
	assert.False(t, ok)
}

func TestScanner_LineTooLong(t *testing.T) {
	long := strings.Repeat("x", 200)
	sc := NewScanner(strings.NewReader(logOf(long)), WithMaxLineBytes(128))
	assert.False(t, sc.Scan())
	assert.ErrorIs(t, sc.Err(), bufio.ErrTooLong)
}

func TestScanner_NoTrailingNewline(t *testing.T) {
	input := header + "\n10.0.0.abc,2017-06-30,00:00:00,,1.0,acc,ext,,,,,,,,"
	sc := NewScanner(strings.NewReader(input))
	assert.Len(t, collect(t, sc), 1)
	assert.NoError(t, sc.Err())
}
