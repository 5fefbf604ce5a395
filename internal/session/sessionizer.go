package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/agent-racer/sessionizer/internal/logger"
)

// Sink receives completed sessions in emission order.
type Sink interface {
	Write(Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Record) error

func (f SinkFunc) Write(r Record) error { return f(r) }

// Counters summarises a sessionization pass.
type Counters struct {
	Events    int    `json:"events"`
	Opened    int    `json:"opened"`
	Extended  int    `json:"extended"`
	Backdated int    `json:"backdated"`
	Expired   int    `json:"expired"` // closed by inactivity
	Flushed   int    `json:"flushed"` // closed at end of stream
	MaxOpen   int    `json:"maxOpen"`
	Longest   Record `json:"longest"`
}

// Emitted returns the number of records written to the sink.
func (c Counters) Emitted() int {
	return c.Expired + c.Flushed
}

// Option configures a Sessionizer.
type Option func(*Sessionizer)

func WithLogger(l *slog.Logger) Option {
	return func(z *Sessionizer) {
		if l != nil {
			z.logger = l
		}
	}
}

// Sessionizer folds an ordered event stream into completed sessions. Before
// each event is applied, sessions idle for longer than the threshold as of
// that event's time are closed and emitted. Flush closes the rest.
type Sessionizer struct {
	table     *Table
	threshold time.Duration
	sink      Sink
	logger    *slog.Logger
	counters  Counters
	flushed   bool
}

func New(threshold time.Duration, sink Sink, opts ...Option) (*Sessionizer, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidThreshold, threshold)
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	z := &Sessionizer{
		table:     NewTable(),
		threshold: threshold,
		sink:      sink,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z, nil
}

// Open returns the number of currently open sessions.
func (z *Sessionizer) Open() int {
	return z.table.Len()
}

// OpenSessions returns copies of the open sessions in table order.
func (z *Sessionizer) OpenSessions() []Session {
	return z.table.Snapshot()
}

func (z *Sessionizer) Counters() Counters {
	return z.counters
}

// Process applies one event. A sink error aborts processing of the event
// and is returned as is.
//
// An event older than its IP's open session is dropped before any expiry
// runs, so a backdated event never closes other sessions.
func (z *Sessionizer) Process(ev Event) (Outcome, error) {
	if z.flushed {
		return Opened, ErrFlushed
	}
	z.counters.Events++

	// Time moving backwards for an IP with an open session: drop the event
	// before it can close anything.
	if open, ok := z.table.Find(ev.IP); ok && ev.Time.Before(open.LastSeen) {
		z.counters.Backdated++
		z.logger.Debug("dropping backdated event",
			"ip", ev.IP,
			"time", ev.Time.Format(TimeLayout),
			"last_seen", open.LastSeen.Format(TimeLayout),
		)
		return Backdated, nil
	}

	for _, s := range z.table.Expired(ev.Time, z.threshold) {
		z.counters.Expired++
		if err := z.emit(s); err != nil {
			return Opened, err
		}
	}

	_, created := z.table.Upsert(ev.IP, ev.Time)
	if n := z.table.Len(); n > z.counters.MaxOpen {
		z.counters.MaxOpen = n
	}
	if created {
		z.counters.Opened++
		return Opened, nil
	}
	z.counters.Extended++
	return Extended, nil
}

// Flush closes every open session in table order. It must be called exactly
// once, after the last event.
func (z *Sessionizer) Flush() error {
	if z.flushed {
		return ErrFlushed
	}
	z.flushed = true

	for _, s := range z.table.Drain() {
		z.counters.Flushed++
		if err := z.emit(s); err != nil {
			return err
		}
	}
	return nil
}

func (z *Sessionizer) emit(s Session) error {
	rec := s.Record()
	if rec.Duration > z.counters.Longest.Duration {
		z.counters.Longest = rec
	}
	if err := z.sink.Write(rec); err != nil {
		return fmt.Errorf("write session %s: %w", rec.IP, err)
	}
	return nil
}
