// Package report renders the end-of-run summary for humans.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/agent-racer/sessionizer/internal/logparse"
	"github.com/agent-racer/sessionizer/internal/runner"
	"github.com/agent-racer/sessionizer/internal/session"
)

const labelWidth = 20

// Render writes a boxed summary of s to w.
func Render(w io.Writer, s *runner.Summary) error {
	if s == nil {
		return fmt.Errorf("report: nil summary")
	}
	st := newStyles(lipgloss.NewRenderer(w))
	p := message.NewPrinter(language.English)

	var b strings.Builder
	b.WriteString(st.header.Render("sessionize") + "  " + st.accent.Render(shortID(s.RunID)))
	b.WriteByte('\n')

	row := func(label, value string) {
		b.WriteByte('\n')
		b.WriteString(st.label.Render(label) + st.value.Render(value))
	}
	num := func(n int) string { return p.Sprintf("%d", n) }

	c := s.Counters
	row("log", s.LogPath)
	row("output", s.OutputPath)
	if s.SQLitePath != "" {
		row("sqlite", s.SQLitePath)
	}
	if s.FeedAddr != "" {
		row("feed", "ws://"+s.FeedAddr+"/ws")
	}
	row("threshold", s.Threshold.String())
	row("lines read", num(s.Lines))
	row("events", num(c.Events))
	row("sessions written", st.good.Render(num(c.Emitted())))
	row("  by inactivity", num(c.Expired))
	row("  at end of log", num(c.Flushed))
	row("peak open", num(c.MaxOpen))
	if c.Emitted() > 0 {
		row("longest", longest(p, c.Longest))
	}

	skipped := s.SkippedTotal() + c.Backdated
	if skipped > 0 {
		row("skipped", st.warn.Render(num(skipped)))
		for _, r := range logparse.Reasons() {
			if n := s.Skipped[r]; n > 0 {
				row("  "+r.String(), num(n))
			}
		}
		if c.Backdated > 0 {
			row("  backdated", num(c.Backdated))
		}
		if s.LastSkip > 0 {
			row("  last skipped", p.Sprintf("line %d (%s)", s.LastSkip, s.LastSkipReason))
		}
	} else {
		row("skipped", st.good.Render("0"))
	}

	row("elapsed", s.Elapsed.Round(time.Millisecond).String())
	if s.Resources.RSSBytes > 0 {
		row("peak rss", p.Sprintf("%.1f MiB", float64(s.Resources.RSSBytes)/(1<<20)))
	}

	_, err := fmt.Fprintln(w, st.box.Render(b.String()))
	return err
}

func longest(p *message.Printer, r session.Record) string {
	return p.Sprintf("%s %ds (%d pages)", r.IP, r.Duration, r.PageCount)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
