package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"presencerelay/internal/mocks"
	"presencerelay/internal/presence"
	"presencerelay/internal/session"
	"presencerelay/pkg/types"
)

// testContext is cancelled when the test ends
// (stand-in for testing.T.Context, which needs Go 1.24).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type inlineSubmitter struct {
	calls chan struct{}
	err   error
}

func (s *inlineSubmitter) Submit(fn func()) error {
	if s.err != nil {
		return s.err
	}
	fn()
	s.calls <- struct{}{}
	return nil
}

func newRegistryAt(t *testing.T, clock *time.Time) *session.Registry {
	return session.NewRegistry(
		session.WithClock(func() time.Time { return *clock }),
		session.WithLogger(zaptest.NewLogger(t)))
}

// FUNCTIONAL VALIDATION TEST: stale + dead is reaped with one presence broadcast; stale + alive is kept
func TestReaper_Sweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	clock := base
	registry := newRegistryAt(t, &clock)
	_, err := registry.Register("dead", "ghost")
	require.NoError(t, err)
	_, err = registry.Register("alive", "alice")
	require.NoError(t, err)
	clock = base.Add(4 * time.Minute)
	_, err = registry.Register("young", "bob")
	require.NoError(t, err)

	now := base.Add(6 * time.Minute)
	broadcaster := presence.NewBroadcaster(transport, registry, zaptest.NewLogger(t))
	r := New(registry, broadcaster, transport, nil, time.Minute, 5*time.Minute, zaptest.NewLogger(t),
		WithClock(func() time.Time { return now }))

	// young is under the threshold and is never checked
	transport.EXPECT().IsAlive("dead").Return(false)
	transport.EXPECT().IsAlive("alive").Return(true)

	var sent []types.OutboundEvent
	transport.EXPECT().BroadcastExcept("dead", gomock.Any()).
		Do(func(_ string, event types.OutboundEvent) { sent = append(sent, event) }).
		Times(2)

	reaped := r.Sweep()

	require.Len(t, reaped, 1)
	assert.Equal(t, "ghost", reaped[0].DisplayName)
	require.Len(t, sent, 2)
	assert.Equal(t, types.EventUserLeft, sent[0].Type)
	assert.Equal(t, types.EventOnlineUsers, sent[1].Type)

	_, ok := registry.LookupByConnection("dead")
	assert.False(t, ok)
	assert.Equal(t, 2, registry.Count())
}

func TestReaper_SweepNothingStale(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)

	clock := base
	registry := newRegistryAt(t, &clock)
	_, err := registry.Register("c1", "alice")
	require.NoError(t, err)

	broadcaster := presence.NewBroadcaster(transport, registry, nil)
	hookRuns := 0
	r := New(registry, broadcaster, transport, nil, time.Minute, 5*time.Minute, nil,
		WithClock(func() time.Time { return base.Add(time.Minute) }),
		WithSweepHook(func() { hookRuns++ }))

	// no IsAlive and no broadcast expected
	assert.Empty(t, r.Sweep())
	assert.Equal(t, 1, hookRuns)
}

func TestReaper_SweepObserverSeesReapedKind(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	observer := mocks.NewMockPresenceObserver(ctrl)

	clock := base
	registry := newRegistryAt(t, &clock)
	_, err := registry.Register("dead", "ghost")
	require.NoError(t, err)

	broadcaster := presence.NewBroadcaster(transport, registry, nil, observer)
	r := New(registry, broadcaster, transport, nil, time.Minute, 5*time.Minute, nil,
		WithClock(func() time.Time { return base.Add(time.Hour) }))

	transport.EXPECT().IsAlive("dead").Return(false)
	transport.EXPECT().BroadcastExcept("dead", gomock.Any()).Times(2)
	observer.EXPECT().PresenceChanged(gomock.Any()).Do(func(change types.PresenceChange) {
		assert.Equal(t, types.PresenceReaped, change.Kind)
		assert.Equal(t, 0, change.OnlineCount)
	})

	r.Sweep()
}

func TestReaper_TickerSubmitsSweeps(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	registry := session.NewRegistry()
	submitter := &inlineSubmitter{calls: make(chan struct{}, 10)}

	r := New(registry, presence.NewBroadcaster(transport, registry, nil), transport, submitter,
		10*time.Millisecond, time.Minute, zaptest.NewLogger(t))
	ctx := testContext(t)
	r.Start(ctx)
	r.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-submitter.calls:
		case <-time.After(2 * time.Second):
			t.Fatal("sweep was never submitted")
		}
	}

	r.Stop()
	r.Stop()
}

func TestReaper_SubmitFailureIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	registry := session.NewRegistry()
	submitter := &inlineSubmitter{calls: make(chan struct{}, 10), err: errors.New("hub stopped")}

	r := New(registry, presence.NewBroadcaster(transport, registry, nil), transport, submitter,
		5*time.Millisecond, time.Minute, zaptest.NewLogger(t))
	r.Start(testContext(t))
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	assert.Empty(t, submitter.calls)
}
