package logparse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/agent-racer/sessionizer/internal/logger"
	"github.com/agent-racer/sessionizer/internal/session"
)

// DefaultMaxLineBytes bounds a single log line.
const DefaultMaxLineBytes = 64 * 1024

// Option configures a Scanner.
type Option func(*Scanner)

// WithMaxLineBytes sets the longest accepted line. Longer lines abort the
// scan with bufio.ErrTooLong. Non-positive values are ignored.
func WithMaxLineBytes(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// WithoutHeader treats the first line as data.
func WithoutHeader() Option {
	return func(s *Scanner) { s.header = false }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scanner reads an access log and yields validated events in file order.
// Skipped lines are logged at debug level and counted; a line with the wrong
// number of columns stops the scan with an error wrapping ErrColumnCount.
//
//	sc := logparse.NewScanner(f)
//	for sc.Scan() {
//		ev := sc.Event()
//		...
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	sc      *bufio.Scanner
	logger  *slog.Logger
	maxLine int
	header  bool
	line    int
	ev      session.Event
	err     error
	tally   *Tally
}

func NewScanner(r io.Reader, opts ...Option) *Scanner {
	s := &Scanner{
		logger:  logger.Discard(),
		maxLine: DefaultMaxLineBytes,
		header:  true,
		tally:   newTally(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sc = bufio.NewScanner(r)
	s.sc.Buffer(make([]byte, 0, min(s.maxLine, DefaultMaxLineBytes)), s.maxLine)
	return s
}

// Scan advances to the next valid event. It returns false at end of input
// or on a fatal error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.sc.Scan() {
		s.line++
		if s.header && s.line == 1 {
			continue
		}

		ev, err := ParseLine(s.sc.Text())
		if err == nil {
			s.ev = ev
			return true
		}

		var skip *SkipError
		if errors.As(err, &skip) {
			skip.Line = s.line
			s.tally.record(skip)
			s.logger.Debug("skipping log line", "line", s.line, "reason", skip.Reason.String(), "error", skip.Error())
			continue
		}

		s.err = fmt.Errorf("line %d: %w", s.line, err)
		return false
	}
	if err := s.sc.Err(); err != nil {
		s.err = fmt.Errorf("line %d: %w", s.line+1, err)
	}
	return false
}

// Event returns the event produced by the last successful Scan.
func (s *Scanner) Event() session.Event {
	return s.ev
}

// Err returns the first fatal error, or nil at a clean end of input.
func (s *Scanner) Err() error {
	return s.err
}

// Line returns the number of lines read so far, header included.
func (s *Scanner) Line() int {
	return s.line
}

// Skipped returns the skip counters.
func (s *Scanner) Skipped() *Tally {
	return s.tally
}
