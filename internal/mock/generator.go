// Package mock produces synthetic EDGAR-style access logs for tests and
// demos. Output is fully determined by the seed.
package mock

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/agent-racer/sessionizer/internal/logparse"
	"github.com/agent-racer/sessionizer/internal/session"
)

// Kind classifies a generated line.
type Kind int

const (
	Valid Kind = iota
	Malformed
	Backdated // valid, but earlier than the IP's previous request
)

// Options controls the generated log. Zero values select the defaults.
type Options struct {
	Seed          int64
	Start         time.Time
	Lines         int
	IPs           int
	MaxStep       time.Duration // largest gap between consecutive lines
	MalformedRate float64
	BackdateRate  float64
}

const (
	defaultLines   = 1000
	defaultIPs     = 40
	defaultMaxStep = 3 * time.Second
)

var defaultStart = time.Date(2017, 6, 30, 0, 0, 0, 0, time.UTC)

// Counts tallies generated lines by kind.
type Counts struct {
	Valid     int
	Malformed int
	Backdated int
}

func (c Counts) Total() int { return c.Valid + c.Malformed + c.Backdated }

var extensions = []string{"-index.htm", ".txt", "-index.html", ".xml", ".htm"}

// Generator emits log lines in non-decreasing time order, apart from the
// deliberately backdated ones.
type Generator struct {
	opts     Options
	rng      *rand.Rand
	now      time.Time
	pool     []string
	lastSeen map[string]time.Time
	counts   Counts
}

func NewGenerator(opts Options) *Generator {
	if opts.Start.IsZero() {
		opts.Start = defaultStart
	}
	if opts.Lines <= 0 {
		opts.Lines = defaultLines
	}
	if opts.IPs <= 0 {
		opts.IPs = defaultIPs
	}
	if opts.MaxStep <= 0 {
		opts.MaxStep = defaultMaxStep
	}

	g := &Generator{
		opts:     opts,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		now:      opts.Start.UTC().Truncate(time.Second),
		lastSeen: make(map[string]time.Time),
	}
	seen := make(map[string]bool, opts.IPs)
	for len(g.pool) < opts.IPs {
		ip := g.randomIP()
		if !seen[ip] {
			seen[ip] = true
			g.pool = append(g.pool, ip)
		}
	}
	return g
}

func (g *Generator) advance() {
	steps := int(g.opts.MaxStep/time.Second) + 1
	g.now = g.now.Add(time.Duration(g.rng.Intn(steps)) * time.Second)
}

func (g *Generator) randomIP() string {
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = byte('a' + g.rng.Intn(26))
	}
	return fmt.Sprintf("%d.%d.%d.%s", 1+g.rng.Intn(254), g.rng.Intn(256), g.rng.Intn(256), suffix)
}

// Next returns the next line without a trailing newline.
func (g *Generator) Next() (string, Kind) {
	g.advance()

	roll := g.rng.Float64()
	switch {
	case roll < g.opts.MalformedRate:
		g.counts.Malformed++
		return g.malformed(), Malformed
	case roll < g.opts.MalformedRate+g.opts.BackdateRate:
		if line, ok := g.backdated(); ok {
			g.counts.Backdated++
			return line, Backdated
		}
	}

	ip := g.pool[g.rng.Intn(len(g.pool))]
	g.lastSeen[ip] = g.now
	g.counts.Valid++
	return g.line(ip, g.now), Valid
}

// backdated picks an IP seen at the current instant or earlier and requests
// it 1-5 seconds before its last request.
func (g *Generator) backdated() (string, bool) {
	if len(g.lastSeen) == 0 {
		return "", false
	}
	ip := g.pool[g.rng.Intn(len(g.pool))]
	last, ok := g.lastSeen[ip]
	if !ok {
		return "", false
	}
	at := last.Add(-time.Duration(1+g.rng.Intn(5)) * time.Second)
	return g.line(ip, at), true
}

func (g *Generator) malformed() string {
	ip := g.pool[g.rng.Intn(len(g.pool))]
	fields := g.fields(ip, g.now)
	switch g.rng.Intn(5) {
	case 0:
		fields[5] = ""
	case 1:
		fields[0] = ""
	case 2:
		fields[0] = "not-an-ip"
	case 3:
		fields[1] = g.now.Format("2006/01/02")
	default:
		fields[2] = g.now.Format("15:04")
	}
	return strings.Join(fields, ",")
}

func (g *Generator) line(ip string, at time.Time) string {
	return strings.Join(g.fields(ip, at), ",")
}

func (g *Generator) fields(ip string, at time.Time) []string {
	cik := 1000000 + g.rng.Intn(900000)
	return []string{
		ip,
		at.Format("2006-01-02"),
		at.Format("15:04:05"),
		"0.0",
		fmt.Sprintf("%d.0", cik),
		fmt.Sprintf("%010d-%02d-%06d", cik, at.Year()%100, g.rng.Intn(1000000)),
		extensions[g.rng.Intn(len(extensions))],
		"200.0",
		fmt.Sprintf("%d.0", 1000+g.rng.Intn(100000)),
		"1.0",
		"0.0",
		"0.0",
		"9.0",
		"0.0",
		"",
	}
}

// Counts returns the lines generated so far by kind.
func (g *Generator) Counts() Counts {
	return g.counts
}

// WriteLog writes the header and opts.Lines lines to w.
func (g *Generator) WriteLog(w io.Writer) (Counts, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(logparse.Columns, ",") + "\n"); err != nil {
		return g.counts, err
	}
	for i := 0; i < g.opts.Lines; i++ {
		line, _ := g.Next()
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return g.counts, err
		}
	}
	return g.counts, bw.Flush()
}

// Events returns n events in non-decreasing time order. The malformed and
// backdate rates do not apply.
func (g *Generator) Events(n int) []session.Event {
	events := make([]session.Event, 0, n)
	for len(events) < n {
		g.advance()
		ip := g.pool[g.rng.Intn(len(g.pool))]
		g.lastSeen[ip] = g.now
		g.counts.Valid++
		events = append(events, session.Event{IP: ip, Time: g.now})
	}
	return events
}
