package session

import (
	"strconv"
	"time"
)

// TimeLayout is the textual form of timestamps in the access log and in
// emitted records.
const TimeLayout = "2006-01-02 15:04:05"

// Session is the open state for one IP.
type Session struct {
	IP        string    `json:"ip"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	PageCount int       `json:"pageCount"`

	seq  uint64 // insertion order; defines table order
	slot int    // index in the idle heap, -1 once removed
}

// IdleFor reports how long the session has been idle as of now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastSeen)
}

// Record closes the session into its output form.
func (s *Session) Record() Record {
	return Record{
		IP:        s.IP,
		FirstSeen: s.FirstSeen,
		LastSeen:  s.LastSeen,
		Duration:  int64(s.LastSeen.Sub(s.FirstSeen)/time.Second) + 1,
		PageCount: s.PageCount,
	}
}

// Record is one completed session. Duration is in whole seconds and counts
// both endpoints, so a single-request session lasts 1 second.
type Record struct {
	IP        string    `json:"ip"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Duration  int64     `json:"duration"`
	PageCount int       `json:"pageCount"`
}

// Fields returns the record as output columns in order.
func (r Record) Fields() []string {
	return []string{
		r.IP,
		r.FirstSeen.Format(TimeLayout),
		r.LastSeen.Format(TimeLayout),
		strconv.FormatInt(r.Duration, 10),
		strconv.Itoa(r.PageCount),
	}
}
