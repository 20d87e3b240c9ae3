package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"presencerelay/pkg/types"
)

type handlerFunc func(types.InboundEvent)

func (f handlerFunc) Handle(event types.InboundEvent) { f(event) }

func startHub(t *testing.T, handler EventHandler, buffer int) *Hub {
	t.Helper()
	h := NewHub(handler, buffer, zaptest.NewLogger(t))
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hub")
		return ""
	}
}

// FUNCTIONAL VALIDATION TEST: lifecycle errors
func TestHub_StartStop(t *testing.T) {
	h := NewHub(handlerFunc(func(types.InboundEvent) {}), 10, zaptest.NewLogger(t))

	assert.ErrorIs(t, h.Stop(), ErrHubNotRunning)
	assert.ErrorIs(t, h.Dispatch(types.InboundEvent{}), ErrHubNotRunning)
	assert.ErrorIs(t, h.Submit(func() {}), ErrHubNotRunning)

	require.NoError(t, h.Start(context.Background()))
	assert.True(t, h.IsRunning())
	assert.ErrorIs(t, h.Start(context.Background()), ErrHubAlreadyRunning)

	require.NoError(t, h.Stop())
	assert.False(t, h.IsRunning())
	assert.ErrorIs(t, h.Dispatch(types.InboundEvent{}), ErrHubNotRunning)

	// restartable
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Stop())
}

func TestHub_ProcessesEventsInOrder(t *testing.T) {
	seen := make(chan string, 10)
	h := startHub(t, handlerFunc(func(e types.InboundEvent) { seen <- e.Type }), 10)

	for _, eventType := range []string{"one", "two", "three"} {
		require.NoError(t, h.Dispatch(types.InboundEvent{Type: eventType}))
	}

	assert.Equal(t, "one", receive(t, seen))
	assert.Equal(t, "two", receive(t, seen))
	assert.Equal(t, "three", receive(t, seen))
}

// TECHNICAL VALIDATION TEST: events and tasks share one goroutine
func TestHub_SubmitIsSerializedWithEvents(t *testing.T) {
	counter := 0
	h := startHub(t, handlerFunc(func(types.InboundEvent) { counter++ }), 1000)

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, h.Dispatch(types.InboundEvent{Type: "inc"}))
		if i%20 == 0 {
			require.NoError(t, h.Submit(func() { counter++ }))
		}
	}

	// counter is only read on the hub goroutine
	require.Eventually(t, func() bool {
		got := make(chan int, 1)
		if h.Submit(func() { got <- counter }) != nil {
			return false
		}
		return <-got == n+n/20
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DispatchNeverBlocks(t *testing.T) {
	started := make(chan string, 1)
	release := make(chan struct{})
	h := startHub(t, handlerFunc(func(types.InboundEvent) {
		select {
		case started <- "busy":
		default:
		}
		<-release
	}), 1)
	defer close(release)

	require.NoError(t, h.Dispatch(types.InboundEvent{Type: "first"}))
	receive(t, started)

	require.NoError(t, h.Dispatch(types.InboundEvent{Type: "queued"}))
	assert.ErrorIs(t, h.Dispatch(types.InboundEvent{Type: "overflow"}), ErrEventChannelFull)
}

func TestHub_RecoversFromPanics(t *testing.T) {
	seen := make(chan string, 10)
	h := startHub(t, handlerFunc(func(e types.InboundEvent) {
		if e.Type == "boom" {
			panic("handler exploded")
		}
		seen <- e.Type
	}), 10)

	require.NoError(t, h.Dispatch(types.InboundEvent{Type: "boom"}))
	require.NoError(t, h.Dispatch(types.InboundEvent{Type: "after"}))

	assert.Equal(t, "after", receive(t, seen))
}

func TestHub_ContextCancellation(t *testing.T) {
	h := NewHub(handlerFunc(func(types.InboundEvent) {}), 10, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))

	cancel()

	assert.Eventually(t, func() bool { return !h.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

// FUNCTIONAL VALIDATION TEST: Stop handles everything queued before it
func TestHub_StopDrainsQueuedEvents(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	handled := 0
	h := NewHub(handlerFunc(func(types.InboundEvent) {
		if handled == 0 {
			started <- struct{}{}
			<-release
		}
		handled++
	}), 10, zaptest.NewLogger(t))
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, h.Dispatch(types.InboundEvent{ConnectionID: "first"}))
	<-started
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Dispatch(types.InboundEvent{ConnectionID: "queued", Disconnect: true}))
	}

	stopped := make(chan error, 1)
	go func() { stopped <- h.Stop() }()
	assert.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, 5*time.Millisecond)
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, 6, handled)
}
