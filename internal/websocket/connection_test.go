package websocket

import (
	"context"
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
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newIdleConnection builds a Connection without a writer goroutine so queue
// behaviour can be observed directly.
func newIdleConnection(id string, bufferSize int) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:      id,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Functional Validation Tests
func TestConnection_NewConnectionInitialization(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection("c1", wsConn, 0, 0, zaptest.NewLogger(t))
	defer conn.Close()

	assert.Equal(t, "c1", conn.ID())
	assert.Equal(t, 100, cap(conn.writeCh), "default write buffer")
	assert.False(t, conn.IsClosed())
}

func TestConnection_SendDeliversFrames(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)

	conn := NewConnection("c1", wsConn, 10, time.Second, zaptest.NewLogger(t))
	defer conn.Close()

	require.NoError(t, conn.Send([]byte(`{"type":"one"}`)))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "two"}))

	assert.JSONEq(t, `{"type":"one"}`, string(waitFrame(t, received)))
	assert.JSONEq(t, `{"type":"two"}`, string(waitFrame(t, received)))
}

func TestConnection_WriteJSONInvalidData(t *testing.T) {
	conn := newIdleConnection("c1", 1)

	err := conn.WriteJSON(make(chan int))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestConnection_SendBufferFull(t *testing.T) {
	conn := newIdleConnection("c1", 1)

	require.NoError(t, conn.Send([]byte("first")))

	// a full queue drops instead of blocking
	done := make(chan error, 1)
	go func() { done <- conn.Send([]byte("second")) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSendBufferFull)
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full queue")
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection("c1", wsConn, 10, time.Second, zaptest.NewLogger(t))

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	conn := newIdleConnection("c1", 10)
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Send([]byte("late")), ErrConnectionClosed)
	assert.ErrorIs(t, conn.WriteJSON(map[string]string{"type": "late"}), ErrConnectionClosed)
}

// Technical Validation Tests (Race Detection)
func TestConnection_ConcurrentWrites(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection("c1", wsConn, 100, time.Second, zaptest.NewLogger(t))
	defer conn.Close()

	const numGoroutines = 10
	const messagesPerGoroutine = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				_ = conn.WriteJSON(map[string]int{"worker": id, "message": j})
			}
		}(i)
	}

	wg.Wait()
}

func TestConnection_CloseWhileSending(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection("c1", wsConn, 4, time.Second, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = conn.Send([]byte(`{}`))
		}
	}()
	go func() {
		defer wg.Done()
		_ = conn.Close()
	}()
	wg.Wait()

	assert.True(t, conn.IsClosed())
}

// createTestWebSocketConnection dials a throwaway server and returns the client
// side plus a channel of frames the server side received.
func createTestWebSocketConnection(t *testing.T) (*websocket.Conn, <-chan []byte) {
	received := make(chan []byte, 100)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "Failed to create test WebSocket connection")
	t.Cleanup(func() { _ = conn.Close() })

	return conn, received
}

func waitFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-frames:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}
