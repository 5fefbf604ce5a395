// Package sink holds the destinations completed sessions are written to.
package sink

import (
	"errors"
	"fmt"
	"io"

	"github.com/agent-racer/sessionizer/internal/session"
)

// Multi writes every record to each of its sinks in order. The first write
// error stops the fan-out for that record.
type Multi struct {
	sinks []session.Sink
}

// NewMulti ignores nil sinks.
func NewMulti(sinks ...session.Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add appends s. A nil sink is ignored.
func (m *Multi) Add(s session.Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

func (m *Multi) Write(r session.Record) error {
	for i, s := range m.sinks {
		if err := s.Write(r); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every sink that implements io.Closer, in order, and joins
// their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
