package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reactionCall struct{ userID, messageID, emoji string }

type reactionRecorder struct {
	mu    sync.Mutex
	calls []reactionCall
}

func (r *reactionRecorder) handle(ctx context.Context, userID, messageID, emoji string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reactionCall{userID, messageID, emoji})
}

func (r *reactionRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func startHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func reactFrame(t *testing.T, messageID, emoji string) []byte {
	t.Helper()
	raw, err := encode(EventReactToMessage, ReactionRequest{MessageID: messageID, Emoji: emoji})
	require.NoError(t, err)
	return raw
}

func TestClientHandle(t *testing.T) {
	rec := &reactionRecorder{}
	h := NewHub(zap.NewNop(), WithEventRate(0.001, 2))
	h.SetReactionHandler(rec.handle)

	anon := newClient(h, nil, "")
	anon.handle(context.Background(), reactFrame(t, "m1", "👍"))
	assert.Equal(t, 0, rec.len(), "anonymous connections are receive-only")

	c := newClient(h, nil, "u1")
	c.handle(context.Background(), []byte("not json"))
	c.handle(context.Background(), []byte(`{"event":"somethingElse","data":{}}`))
	assert.Equal(t, 0, rec.len())

	for i := 0; i < 5; i++ {
		c.handle(context.Background(), reactFrame(t, "m1", "👍"))
	}
	require.Equal(t, 2, rec.len(), "events beyond the burst are discarded")
	assert.Equal(t, reactionCall{"u1", "m1", "👍"}, rec.calls[0])
}

func TestHubDropsSlowClient(t *testing.T) {
	h := startHub(t)
	c := &Client{hub: h, send: make(chan []byte), userID: "slow"}
	require.True(t, h.join(c))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Deliver([]byte(`{}`))
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-c.send
	assert.False(t, open)
}

type countObserver struct {
	mu   sync.Mutex
	last int
}

func (o *countObserver) ConnectionsChanged(n int) {
	o.mu.Lock()
	o.last = n
	o.mu.Unlock()
}

func dial(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if user != "" {
		url += "?user=" + user
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readReaction(t *testing.T, conn *websocket.Conn) ReactionEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, EventMessageReaction, env.Event)
	var ev ReactionEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	return ev
}

func TestServeWSBroadcastsReactions(t *testing.T) {
	observer := &countObserver{}
	h := NewHub(zap.NewNop(), WithObserver(observer))
	rec := &reactionRecorder{}
	h.SetReactionHandler(func(ctx context.Context, userID, messageID, emoji string) {
		rec.handle(ctx, userID, messageID, emoji)
		_ = h.PublishReaction(ctx, messageID, emoji, userID)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	resolve := func(r *http.Request) string { return r.URL.Query().Get("user") }
	mux := http.NewServeMux()
	mux.Handle("/ws", ServeWS(h, resolve, []string{"http://localhost:3000"}))
	server := httptest.NewServer(mux)
	defer server.Close()

	sender := dial(t, server, "u1")
	watcher := dial(t, server, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, watcher.WriteMessage(websocket.TextMessage, reactFrame(t, "m1", "🔥")))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, reactFrame(t, "m1", "❤️")))

	want := ReactionEvent{MessageID: "m1", Emoji: "❤️", UserID: "u1"}
	assert.Equal(t, want, readReaction(t, sender))
	assert.Equal(t, want, readReaction(t, watcher))
	assert.Equal(t, 1, rec.len())

	observer.mu.Lock()
	assert.Equal(t, 2, observer.last)
	observer.mu.Unlock()
}

func TestServeWSRejectsUnknownOrigin(t *testing.T) {
	h := startHub(t)
	server := httptest.NewServer(ServeWS(h, func(*http.Request) string { return "" }, []string{"http://localhost:3000"}))
	defer server.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRedisRelayRoundTrip(t *testing.T) {
	s := miniredis.RunT(t)
	relay, err := NewRedisRelay("redis://"+s.Addr(), "nrg:test")
	require.NoError(t, err)
	defer relay.Close()

	received := make(chan []byte, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = relay.Subscribe(ctx, func(payload []byte) { received <- payload })
	}()

	var got []byte
	require.Eventually(t, func() bool {
		if err := relay.Publish(context.Background(), []byte("hello")); err != nil {
			return false
		}
		select {
		case got = <-received:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello", string(got))
}

func TestHubPublishesThroughRelay(t *testing.T) {
	s := miniredis.RunT(t)
	relay, err := NewRedisRelay("redis://"+s.Addr(), "nrg:test")
	require.NoError(t, err)
	defer relay.Close()

	h := startHub(t, WithRelay(relay))
	c := &Client{hub: h, send: make(chan []byte, 4), userID: "u1"}
	require.True(t, h.join(c))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relay.Subscribe(ctx, h.Deliver) }()

	var payload []byte
	require.Eventually(t, func() bool {
		if err := h.PublishReaction(context.Background(), "m1", "👍", "u2"); err != nil {
			return false
		}
		select {
		case payload = <-c.send:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, EventMessageReaction, env.Event)
	assert.JSONEq(t, `{"messageId":"m1","emoji":"👍","userId":"u2"}`, string(env.Data))
}

type brokenRelay struct{}

func (brokenRelay) Publish(context.Context, []byte) error { return errors.New("redis down") }

func TestHubDropRelayDeliversLocally(t *testing.T) {
	h := startHub(t, WithRelay(brokenRelay{}))
	c := &Client{hub: h, send: make(chan []byte, 4), userID: "u1"}
	require.True(t, h.join(c))

	require.Error(t, h.PublishReaction(context.Background(), "m1", "👍", "u2"))

	h.DropRelay()
	require.NoError(t, h.PublishReaction(context.Background(), "m1", "👍", "u2"))
	select {
	case payload := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		assert.Equal(t, EventMessageReaction, env.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("expected local delivery after the relay was dropped")
	}
}

func TestNewRedisRelayBadURL(t *testing.T) {
	_, err := NewRedisRelay("://nope", "x")
	assert.Error(t, err)
}
