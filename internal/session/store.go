package session

import (
	"cmp"
	"container/heap"
	"slices"
	"time"
)

// Table holds the currently open sessions keyed by IP. Iteration order
// ("table order") is the order in which the open sessions were created.
//
// A Table is owned by a single processing pass and is not safe for
// concurrent use.
type Table struct {
	sessions map[string]*Session
	idle     idleHeap
	nextSeq  uint64
}

func NewTable() *Table {
	return &Table{
		sessions: make(map[string]*Session),
	}
}

// Len returns the number of open sessions.
func (t *Table) Len() int {
	return len(t.sessions)
}

// Find returns a copy of the open session for ip.
func (t *Table) Find(ip string) (Session, bool) {
	s, ok := t.sessions[ip]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Upsert folds an event at ts into the session for ip, creating the session
// if none is open. It reports whether a new session was created.
func (t *Table) Upsert(ip string, ts time.Time) (Session, bool) {
	if s, ok := t.sessions[ip]; ok {
		s.LastSeen = ts
		s.PageCount++
		heap.Fix(&t.idle, s.slot)
		return *s, false
	}

	s := &Session{
		IP:        ip,
		FirstSeen: ts,
		LastSeen:  ts,
		PageCount: 1,
		seq:       t.nextSeq,
	}
	t.nextSeq++
	t.sessions[ip] = s
	heap.Push(&t.idle, s)
	return *s, true
}

// Evict removes and returns the open session for ip.
func (t *Table) Evict(ip string) (Session, bool) {
	s, ok := t.sessions[ip]
	if !ok {
		return Session{}, false
	}
	delete(t.sessions, ip)
	heap.Remove(&t.idle, s.slot)
	return *s, true
}

// Expired removes and returns, in table order, every session whose idle time
// as of now is strictly greater than threshold.
func (t *Table) Expired(now time.Time, threshold time.Duration) []Session {
	var expired []*Session
	for len(t.idle) > 0 && t.idle[0].IdleFor(now) > threshold {
		s := heap.Pop(&t.idle).(*Session)
		delete(t.sessions, s.IP)
		expired = append(expired, s)
	}
	return inTableOrder(expired)
}

// Drain removes and returns all open sessions in table order.
func (t *Table) Drain() []Session {
	all := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		all = append(all, s)
	}
	t.sessions = make(map[string]*Session)
	t.idle = nil
	return inTableOrder(all)
}

// Snapshot returns copies of the open sessions in table order without
// modifying the table.
func (t *Table) Snapshot() []Session {
	all := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		all = append(all, s)
	}
	return inTableOrder(all)
}

func inTableOrder(ss []*Session) []Session {
	if len(ss) == 0 {
		return nil
	}
	slices.SortFunc(ss, func(a, b *Session) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Session, len(ss))
	for i, s := range ss {
		out[i] = *s
	}
	return out
}
