package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agent-racer/sessionizer/internal/session"
)

// CSV writes one comma-joined line per record, no header:
//
//	ip,first_seen,last_seen,duration,page_count
//
// Fields are never quoted.
type CSV struct {
	w      *bufio.Writer
	closer io.Closer
}

// NewCSV writes to w. Close flushes but does not close w.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: bufio.NewWriter(w)}
}

// CreateCSV creates or truncates the file at path. Close flushes and closes it.
func CreateCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	c := NewCSV(f)
	c.closer = f
	return c, nil
}

func (c *CSV) Write(r session.Record) error {
	if _, err := c.w.WriteString(strings.Join(r.Fields(), ",")); err != nil {
		return err
	}
	return c.w.WriteByte('\n')
}

func (c *CSV) Close() error {
	err := c.w.Flush()
	if c.closer != nil {
		err = errors.Join(err, c.closer.Close())
		c.closer = nil
	}
	return err
}
