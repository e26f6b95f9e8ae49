package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeServer speaks just enough of the channel protocol to join a topic and
// push changes to it.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	joined   chan string
	queries  chan string
	dropNext bool
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{t: t, joined: make(chan string, 16), queries: make(chan string, 16)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/realtime/v1/websocket" {
		http.NotFound(w, r)
		return
	}
	f.queries <- r.URL.RawQuery
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	drop := f.dropNext
	f.dropNext = false
	f.mu.Unlock()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event == "phx_join" {
			f.joined <- msg.Topic
			if drop {
				return
			}
		}
	}
}

func (f *fakeServer) push(t *testing.T, topic string, change Change) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"data": change, "ids": []int{1}})
	require.NoError(t, err)

	f.mu.Lock()
	conn := f.conns[len(f.conns)-1]
	f.mu.Unlock()
	require.NoError(t, conn.WriteJSON(message{Topic: topic, Event: "postgres_changes", Payload: payload}))
}

func waitJoin(t *testing.T, f *fakeServer) string {
	t.Helper()
	select {
	case topic := <-f.joined:
		return topic
	case <-time.After(5 * time.Second):
		t.Fatal("no join received")
		return ""
	}
}

func newTestClient(f *fakeServer) *Client {
	return NewClient(Config{
		URL:        f.srv.URL,
		APIKey:     "anon-key",
		Heartbeat:  time.Hour,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, zap.NewNop())
}

func TestClientDeliversInserts(t *testing.T) {
	f := newFakeServer(t)
	c := newTestClient(f)

	got := make(chan Change, 1)
	sub := c.Subscribe(Filter{Event: "INSERT", Schema: "public", Table: "memories"}, func(ch Change) { got <- ch })
	defer sub.Close()

	c.Start(context.Background())
	defer c.Close()

	topic := waitJoin(t, f)
	assert.Equal(t, "realtime:public:memories:insert", topic)

	q := <-f.queries
	assert.Contains(t, q, "apikey=anon-key")
	assert.Contains(t, q, "vsn=1.0.0")

	f.push(t, topic, Change{Schema: "public", Table: "memories", Type: "UPDATE", Record: json.RawMessage(`{"id":"skip"}`)})
	f.push(t, topic, Change{Schema: "public", Table: "memories", Type: "INSERT", Record: json.RawMessage(`{"id":"m1"}`)})

	select {
	case ch := <-got:
		assert.Equal(t, "INSERT", ch.Type)
		assert.JSONEq(t, `{"id":"m1"}`, string(ch.Record))
	case <-time.After(5 * time.Second):
		t.Fatal("change not delivered")
	}
}

func TestClientReconnectsAndRejoins(t *testing.T) {
	f := newFakeServer(t)
	f.dropNext = true
	c := newTestClient(f)

	got := make(chan Change, 1)
	c.Subscribe(Filter{Event: "INSERT", Table: "memories"}, func(ch Change) { got <- ch })
	c.Start(context.Background())
	defer c.Close()

	first := waitJoin(t, f)
	second := waitJoin(t, f)
	assert.Equal(t, first, second)

	require.Eventually(t, c.Connected, 5*time.Second, 10*time.Millisecond)
	f.push(t, second, Change{Type: "INSERT", Record: json.RawMessage(`{"id":"after-reconnect"}`)})

	select {
	case ch := <-got:
		assert.Contains(t, string(ch.Record), "after-reconnect")
	case <-time.After(5 * time.Second):
		t.Fatal("change not delivered after reconnect")
	}
}

func TestClientReconnectsWhenServerGoesSilent(t *testing.T) {
	f := newFakeServer(t)
	c := NewClient(Config{
		URL:        f.srv.URL,
		APIKey:     "anon-key",
		Heartbeat:  20 * time.Millisecond,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	}, zap.NewNop())

	sub := c.Subscribe(Filter{Event: "INSERT", Schema: "public", Table: "memories"}, func(Change) {})
	defer sub.Close()

	c.Start(context.Background())
	defer c.Close()

	// The fake never answers heartbeats, so the client must give up on the
	// first socket and join again on a new one.
	first := waitJoin(t, f)
	second := waitJoin(t, f)
	assert.Equal(t, first, second)

	f.mu.Lock()
	dials := len(f.conns)
	f.mu.Unlock()
	assert.GreaterOrEqual(t, dials, 2)
}

func TestClientCloseWithoutStart(t *testing.T) {
	c := NewClient(Config{URL: "http://127.0.0.1:1"}, zap.NewNop())
	c.Close()
	assert.False(t, c.Connected())
}

func TestClientStopsRetryingOnClose(t *testing.T) {
	c := NewClient(Config{
		URL:        "http://127.0.0.1:1",
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
	}, zap.NewNop())
	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	c.Close()
	assert.False(t, c.Connected())
}

func TestEndpoint(t *testing.T) {
	c := NewClient(Config{URL: "https://abc.supabase.co/", APIKey: "k"}, zap.NewNop())
	u, err := c.endpoint()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://abc.supabase.co/realtime/v1/websocket?"))

	c = NewClient(Config{URL: "ftp://nope"}, zap.NewNop())
	_, err = c.endpoint()
	assert.Error(t, err)
}
