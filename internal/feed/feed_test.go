package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-racer/sessionizer/internal/session"
)

var t0 = time.Date(2017, 6, 30, 0, 0, 0, 0, time.UTC)

func rec(ip string, pages int) session.Record {
	return session.Record{IP: ip, FirstSeen: t0, LastSeen: t0, Duration: 1, PageCount: pages}
}

type rawMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg rawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func newTestServer(t *testing.T, b *Broadcaster, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(b, nil, token, nil).Handler())
	t.Cleanup(func() {
		b.Stop()
		srv.Close()
	})
	return srv
}

func TestFeedStreamsSessions(t *testing.T) {
	b := NewBroadcaster(8, 0, nil, nil)
	require.NoError(t, b.Write(rec("10.0.0.1", 3)))
	srv := newTestServer(t, b, "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	require.Equal(t, MsgSnapshot, msg.Type)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, "10.0.0.1", snap.Sessions[0].IP)
	assert.Equal(t, 1, snap.Published)
	assert.False(t, snap.Done)

	require.NoError(t, b.Write(rec("10.0.0.2", 1)))
	msg = readMessage(t, conn)
	require.Equal(t, MsgSession, msg.Type)
	var sp SessionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &sp))
	assert.Equal(t, 2, sp.Seq)
	assert.Equal(t, "10.0.0.2", sp.Session.IP)
	assert.True(t, sp.Session.FirstSeen.Equal(t0))

	b.Done(DonePayload{RunID: "r1", Sessions: 2})
	msg = readMessage(t, conn)
	require.Equal(t, MsgDone, msg.Type)
	var done DonePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &done))
	assert.Equal(t, "r1", done.RunID)
}

func TestFeedLateClientGetsDone(t *testing.T) {
	b := NewBroadcaster(8, 0, nil, nil)
	b.Done(DonePayload{RunID: "r1"})
	srv := newTestServer(t, b, "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, MsgSnapshot, readMessage(t, conn).Type)
	assert.Equal(t, MsgDone, readMessage(t, conn).Type)
}

func TestFeedPrivacyFilter(t *testing.T) {
	b := NewBroadcaster(8, 0, &session.PrivacyFilter{
		MaskIPs:    true,
		BlockedIPs: []string{"10.0.0.*"},
	}, nil)
	srv := newTestServer(t, b, "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)

	require.NoError(t, b.Write(rec("10.0.0.1", 1)))
	require.NoError(t, b.Write(rec("192.168.1.1", 1)))

	msg := readMessage(t, conn)
	var sp SessionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &sp))
	assert.Equal(t, 2, sp.Seq, "blocked record is counted but not sent")
	assert.NotEqual(t, "192.168.1.1", sp.Session.IP)
	assert.Len(t, sp.Session.IP, 12)

	recent := b.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, sp.Session.IP, recent[0].IP)
}

func TestBroadcasterRecentRing(t *testing.T) {
	b := NewBroadcaster(2, 0, nil, nil)
	for _, ip := range []string{"a", "b", "c"} {
		require.NoError(t, b.Write(rec(ip, 1)))
	}
	recent := b.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].IP)
	assert.Equal(t, "c", recent[1].IP)
	assert.Equal(t, 3, b.Published())

	none := NewBroadcaster(0, 0, nil, nil)
	require.NoError(t, none.Write(rec("a", 1)))
	assert.Empty(t, none.Recent())
	assert.Equal(t, 1, none.Published())
}

func TestFeedMaxClients(t *testing.T) {
	b := NewBroadcaster(0, 1, nil, nil)
	srv := newTestServer(t, b, "")

	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	defer first.Close()
	readMessage(t, first)

	second, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
	assert.Equal(t, 1, b.ClientCount())
}

func TestFeedClientDisconnectIsRemoved(t *testing.T) {
	b := NewBroadcaster(0, 0, nil, nil)
	srv := newTestServer(t, b, "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws"), nil)
	require.NoError(t, err)
	readMessage(t, conn)
	require.Equal(t, 1, b.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWritePumpRemovesClientOnWriteError(t *testing.T) {
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- c
	}))
	defer srv.Close()

	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err)
	clientConn.Close()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}

	b := NewBroadcaster(0, 0, nil, nil)
	c := &client{conn: serverConn, b: b, send: make(chan []byte, 1)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)
	go c.writePump()

	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionsEndpointAuth(t *testing.T) {
	b := NewBroadcaster(4, 0, nil, nil)
	require.NoError(t, b.Write(rec("10.0.0.1", 2)))
	srv := newTestServer(t, b, "s3cret")

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"no token", "/api/sessions", nil, http.StatusUnauthorized},
		{"wrong token", "/api/sessions?token=nope", nil, http.StatusUnauthorized},
		{"query token", "/api/sessions?token=s3cret", nil, http.StatusOK},
		{"header token", "/api/sessions", map[string]string{tokenHeader: "s3cret"}, http.StatusOK},
		{"bearer token", "/api/sessions", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"health is open", "/healthz", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
			require.NoError(t, err)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	resp, err := http.Get(srv.URL + "/api/sessions?token=s3cret")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got []session.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].PageCount)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin", nil, "", "feed:8090", true},
		{"same host", nil, "http://feed:8090", "feed:8090", true},
		{"localhost", nil, "http://localhost:3000", "feed:8090", true},
		{"loopback v6", nil, "http://[::1]:3000", "feed:8090", true},
		{"foreign", nil, "http://evil.example", "feed:8090", false},
		{"allowlisted", []string{"https://dash.example"}, "https://dash.example", "feed:8090", true},
		{"allowlisted host other scheme", []string{"https://dash.example"}, "http://dash.example", "feed:8090", true},
		{"allowlist excludes localhost", []string{"https://dash.example"}, "http://localhost:3000", "feed:8090", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(NewBroadcaster(0, 0, nil, nil), tt.allowed, "", nil)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(req))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	securityHeaders(inner).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}
	for header, expected := range want {
		assert.Equal(t, expected, rr.Header().Get(header), header)
	}
}

func TestServerStartShutdown(t *testing.T) {
	b := NewBroadcaster(0, 0, nil, nil)
	s := NewServer(b, nil, "", nil)
	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	_, err = s.Start("127.0.0.1:0")
	assert.Error(t, err)

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	var health map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, 0, health["clients"])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, err = http.Get("http://" + addr.String() + "/healthz")
	assert.Error(t, err)
}
