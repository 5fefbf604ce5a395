package logparse

// Tally counts skipped lines per reason and remembers the most recent one.
type Tally struct {
	counts     map[Reason]int
	lastLine   int
	lastReason Reason
}

func newTally() *Tally {
	return &Tally{counts: make(map[Reason]int)}
}

func (t *Tally) record(skip *SkipError) {
	t.counts[skip.Reason]++
	t.lastLine = skip.Line
	t.lastReason = skip.Reason
}

// Count returns the number of lines skipped for reason.
func (t *Tally) Count(reason Reason) int {
	return t.counts[reason]
}

// Total returns the number of skipped lines.
func (t *Tally) Total() int {
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

// Last returns the line number and reason of the most recent skip. ok is
// false when nothing was skipped.
func (t *Tally) Last() (line int, reason Reason, ok bool) {
	if t.Total() == 0 {
		return 0, 0, false
	}
	return t.lastLine, t.lastReason, true
}

// Snapshot returns a copy of the per-reason counts.
func (t *Tally) Snapshot() map[Reason]int {
	out := make(map[Reason]int, len(t.counts))
	for r, c := range t.counts {
		out[r] = c
	}
	return out
}
