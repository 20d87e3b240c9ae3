package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"presencerelay/internal/config"
	"presencerelay/pkg/types"
)

// recordingDispatcher captures dispatched events and whether the pool still
// knew the connection at dispatch time.
type recordingDispatcher struct {
	pool   *Pool
	events chan types.InboundEvent
	mu     sync.Mutex
	err    error
	alive  map[string]bool
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{
		events: make(chan types.InboundEvent, 100),
		alive:  make(map[string]bool),
	}
}

func (d *recordingDispatcher) Dispatch(event types.InboundEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if event.Disconnect && d.pool != nil {
		_, tracked := d.pool.Get(event.ConnectionID)
		d.alive[event.ConnectionID] = tracked
	}
	d.events <- event
	return d.err
}

func (d *recordingDispatcher) failWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *recordingDispatcher) next(t *testing.T) types.InboundEvent {
	t.Helper()
	select {
	case event := <-d.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched event")
		return types.InboundEvent{}
	}
}

func newTestHandler(t *testing.T, cfg *config.WebSocketConfig) (*Pool, *recordingDispatcher, string) {
	log := zaptest.NewLogger(t)
	pool := NewPool(log)
	dispatcher := newRecordingDispatcher()
	dispatcher.pool = pool

	handler := NewHandler(pool, dispatcher, cfg, log)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		pool.CloseAll()
		server.Close()
	})

	return pool, dispatcher, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) types.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env types.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHandler_DispatchesEnvelopes(t *testing.T) {
	pool, dispatcher, url := newTestHandler(t, nil)
	client := dial(t, url)

	require.NoError(t, client.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"join","data":{"username":"alice"},"ack":"a1"}`)))

	event := dispatcher.next(t)
	assert.Equal(t, types.EventJoin, event.Type)
	assert.Equal(t, "a1", event.Ack)
	assert.JSONEq(t, `{"username":"alice"}`, string(event.Data))
	assert.False(t, event.Disconnect)
	assert.True(t, pool.IsAlive(event.ConnectionID))
	assert.Equal(t, 1, pool.ConnectionCount())
}

func TestHandler_AssignsDistinctIDs(t *testing.T) {
	_, dispatcher, url := newTestHandler(t, nil)

	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		client := dial(t, url)
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_session_info"}`)))
		ids[dispatcher.next(t).ConnectionID] = true
	}
	assert.Len(t, ids, 3)
}

func TestHandler_MalformedFrame(t *testing.T) {
	_, dispatcher, url := newTestHandler(t, nil)
	client := dial(t, url)

	for _, frame := range []string{`not json`, `{"data":{}}`} {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(frame)))

		env := readEnvelope(t, client)
		assert.Equal(t, types.EventError, env.Type)
		assert.Contains(t, string(env.Data), types.ErrMalformedPayload.Error())
	}
	assert.Empty(t, dispatcher.events)
}

func TestHandler_DispatchFailureRepliesError(t *testing.T) {
	_, dispatcher, url := newTestHandler(t, nil)
	dispatcher.failWith(errors.New("queue full"))
	client := dial(t, url)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"send_message"}`)))
	dispatcher.next(t)

	env := readEnvelope(t, client)
	assert.Equal(t, types.EventError, env.Type)
}

func TestHandler_DisconnectAfterPoolRemoval(t *testing.T) {
	pool, dispatcher, url := newTestHandler(t, nil)
	client := dial(t, url)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_session_info"}`)))
	id := dispatcher.next(t).ConnectionID

	require.NoError(t, client.Close())

	event := dispatcher.next(t)
	assert.True(t, event.Disconnect)
	assert.Equal(t, id, event.ConnectionID)

	dispatcher.mu.Lock()
	trackedAtDispatch := dispatcher.alive[id]
	dispatcher.mu.Unlock()
	assert.False(t, trackedAtDispatch, "pool must forget the connection before the disconnect is dispatched")
	assert.False(t, pool.IsAlive(id))
}

// TECHNICAL VALIDATION TEST: Wait returns only after every disconnect was dispatched
func TestHandler_WaitForConnectionHandlers(t *testing.T) {
	log := zaptest.NewLogger(t)
	pool := NewPool(log)
	dispatcher := newRecordingDispatcher()
	handler := NewHandler(pool, dispatcher, nil, log)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	for i := 0; i < 2; i++ {
		client := dial(t, url)
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_session_info"}`)))
		dispatcher.next(t)
	}

	// Given live connections, Wait honours its context
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, handler.Wait(ctx), context.DeadlineExceeded)

	// When the pool closes them, Wait returns with both disconnects already dispatched
	pool.CloseAll()
	require.NoError(t, handler.Wait(context.Background()))
	require.Len(t, dispatcher.events, 2)
	for i := 0; i < 2; i++ {
		assert.True(t, (<-dispatcher.events).Disconnect)
	}
}

func TestHandler_ReadLimitClosesConnection(t *testing.T) {
	cfg := config.DefaultConfig().WebSocket
	cfg.MaxMessageSize = 64
	_, dispatcher, url := newTestHandler(t, cfg)
	client := dial(t, url)

	big := `{"type":"send_message","data":{"message":"` + strings.Repeat("x", 256) + `"}}`
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(big)))

	event := dispatcher.next(t)
	assert.True(t, event.Disconnect)
}

func TestHandler_OriginAllowList(t *testing.T) {
	cfg := config.DefaultConfig().WebSocket
	cfg.AllowedOrigins = []string{"https://chat.example"}
	_, _, url := newTestHandler(t, cfg)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://chat.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}
