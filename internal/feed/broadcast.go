package feed

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agent-racer/sessionizer/internal/logger"
	"github.com/agent-racer/sessionizer/internal/session"
)

// ErrTooManyClients is returned by AddClient when the connection limit is
// reached.
var ErrTooManyClients = errors.New("too many websocket clients")

const clientSendBuffer = 64

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster pushes completed sessions to websocket clients. It implements
// session.Sink and never blocks or fails the run: clients that cannot keep
// up are disconnected.
type Broadcaster struct {
	mu         sync.Mutex
	clients    map[*client]bool
	maxClients int
	privacy    *session.PrivacyFilter
	logger     *slog.Logger

	recent    []session.Record // ring of the last len(recent) records
	start     int
	size      int
	published int
	done      *DonePayload
}

// NewBroadcaster keeps the last recent records for snapshots. maxClients <= 0
// means unlimited. A nil filter publishes everything unmasked.
func NewBroadcaster(recent, maxClients int, privacy *session.PrivacyFilter, l *slog.Logger) *Broadcaster {
	if privacy == nil {
		privacy = &session.PrivacyFilter{}
	}
	if l == nil {
		l = logger.Discard()
	}
	return &Broadcaster{
		clients:    make(map[*client]bool),
		maxClients: maxClients,
		privacy:    privacy,
		logger:     l,
		recent:     make([]session.Record, max(recent, 0)),
	}
}

// AddClient registers conn and queues a snapshot of recent sessions as its
// first message.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		return nil, ErrTooManyClients
	}

	c := &client{conn: conn, b: b, send: make(chan []byte, clientSendBuffer)}
	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: b.snapshotLocked()})
	if err != nil {
		return nil, err
	}
	c.send <- data
	if b.done != nil {
		if data, err := json.Marshal(Message{Type: MsgDone, Payload: *b.done}); err == nil {
			c.send <- data
		}
	}
	b.clients[c] = true
	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Write publishes r to every client and remembers it for snapshots. A
// client sees r either in its snapshot or as a live message, never both.
func (b *Broadcaster) Write(r session.Record) error {
	b.mu.Lock()
	b.published++
	if len(b.recent) > 0 {
		b.recent[(b.start+b.size)%len(b.recent)] = r
		if b.size < len(b.recent) {
			b.size++
		} else {
			b.start = (b.start + 1) % len(b.recent)
		}
	}
	var slow []*client
	if b.privacy.IsAllowed(r.IP) {
		slow = b.sendLocked(Message{
			Type:    MsgSession,
			Payload: SessionPayload{Seq: b.published, Session: b.privacy.Apply(r)},
		})
	}
	b.mu.Unlock()

	b.dropSlow(slow)
	return nil
}

// Done announces the end of the run. Clients connecting afterwards receive
// it after their snapshot.
func (b *Broadcaster) Done(p DonePayload) {
	b.mu.Lock()
	b.done = &p
	slow := b.sendLocked(Message{Type: MsgDone, Payload: p})
	b.mu.Unlock()

	b.dropSlow(slow)
}

// Recent returns the remembered records, oldest first, with the privacy
// filter applied.
func (b *Broadcaster) Recent() []session.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recentLocked()
}

func (b *Broadcaster) recentLocked() []session.Record {
	out := make([]session.Record, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.recent[(b.start+i)%len(b.recent)])
	}
	return b.privacy.FilterSlice(out)
}

func (b *Broadcaster) snapshotLocked() SnapshotPayload {
	return SnapshotPayload{
		Sessions:  b.recentLocked(),
		Published: b.published,
		Done:      b.done != nil,
	}
}

// Published returns the number of records written so far.
func (b *Broadcaster) Published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// sendLocked queues msg for every client and returns those whose buffer
// was full. b.mu must be held.
func (b *Broadcaster) sendLocked(msg Message) []*client {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal error", "error", err)
		return nil
	}

	var slow []*client
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	return slow
}

func (b *Broadcaster) dropSlow(slow []*client) {
	for _, c := range slow {
		b.logger.Warn("ws client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		b.RemoveClient(c)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Stop disconnects every client. Queued messages are still written.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}
