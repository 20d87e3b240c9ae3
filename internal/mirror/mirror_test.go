package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"presencerelay/pkg/types"
)

type published struct {
	channel string
	payload string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
	block    chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.messages = append(f.messages, published{channel: channel, payload: message.(string)})
	cmd.SetVal(1)
	return cmd
}

func (f *fakePublisher) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func joined(name string) types.PresenceChange {
	return types.PresenceChange{
		Kind:        types.PresenceJoined,
		Session:     types.UserSession{ConnectionID: "c-" + name, DisplayName: name},
		OnlineCount: 1,
		At:          time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "presencerelay:presence", Channel("presencerelay"))
	assert.Equal(t, "presence", Channel(""))
}

// FUNCTIONAL VALIDATION TEST: changes are published as JSON on the prefixed channel
func TestMirror_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "relay", 8, zaptest.NewLogger(t))

	m.PresenceChanged(joined("alice"))
	require.NoError(t, m.Close())

	msgs := pub.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "relay:presence", msgs[0].channel)

	var got types.PresenceChange
	require.NoError(t, json.Unmarshal([]byte(msgs[0].payload), &got))
	assert.Equal(t, types.PresenceJoined, got.Kind)
	assert.Equal(t, "alice", got.Session.DisplayName)
	assert.Equal(t, 1, got.OnlineCount)
}

func TestMirror_PreservesOrder(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "relay", 16, zaptest.NewLogger(t))

	names := []string{"alice", "bob", "carol"}
	for _, name := range names {
		m.PresenceChanged(joined(name))
	}
	require.NoError(t, m.Close())

	msgs := pub.snapshot()
	require.Len(t, msgs, len(names))
	for i, name := range names {
		assert.Contains(t, msgs[i].payload, `"username":"`+name+`"`)
	}
}

func TestMirror_PublishErrorsAreDropped(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	m := New(pub, "relay", 8, zaptest.NewLogger(t))

	m.PresenceChanged(joined("alice"))
	m.PresenceChanged(joined("bob"))
	assert.NoError(t, m.Close())
	assert.Empty(t, pub.snapshot())
}

// TECHNICAL VALIDATION TEST: a stalled publisher never blocks the caller
func TestMirror_FullQueueDrops(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	m := New(pub, "relay", 2, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			m.PresenceChanged(joined("user"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PresenceChanged blocked")
	}

	close(pub.block)
	require.NoError(t, m.Close())
	// one in flight plus the two buffered
	assert.LessOrEqual(t, len(pub.snapshot()), 3)
	assert.NotEmpty(t, pub.snapshot())
}

func TestMirror_CloseIsIdempotent(t *testing.T) {
	pub := &fakePublisher{}
	m := New(pub, "relay", 2, nil)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.PresenceChanged(joined("late"))
	assert.Empty(t, pub.snapshot())
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-redis-url", "relay", 8, nil)
	assert.Error(t, err)
}
