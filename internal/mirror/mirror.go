// Package mirror republishes presence changes to Redis for other services.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"presencerelay/pkg/types"
)

var ErrMirrorClosed = errors.New("presence mirror closed")

// Publisher is the slice of *redis.Client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

const publishTimeout = 5 * time.Second

// Mirror publishes presence changes from a single worker goroutine.
type Mirror struct {
	publisher Publisher
	channel   string
	queue     chan types.PresenceChange
	log       *zap.Logger

	mu      sync.RWMutex
	closed  bool
	closers []func() error
	wg      sync.WaitGroup
}

// New starts a mirror publishing to "<prefix>:presence".
func New(publisher Publisher, prefix string, queueSize int, log *zap.Logger) *Mirror {
	if log == nil {
		log = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	m := &Mirror{
		publisher: publisher,
		channel:   Channel(prefix),
		queue:     make(chan types.PresenceChange, queueSize),
		log:       log,
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Dial connects to the Redis server at url and starts a mirror on it.
func Dial(ctx context.Context, url, prefix string, queueSize int, log *zap.Logger) (*Mirror, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	m := New(rdb, prefix, queueSize, log)
	m.closers = append(m.closers, rdb.Close)
	return m, nil
}

// Channel returns the pub/sub channel used for prefix.
func Channel(prefix string) string {
	if prefix == "" {
		return "presence"
	}
	return prefix + ":presence"
}

// PresenceChanged queues the change without blocking. A full queue drops it.
func (m *Mirror) PresenceChanged(change types.PresenceChange) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}
	select {
	case m.queue <- change:
	default:
		m.log.Warn("mirror queue full, dropping presence change",
			zap.String("kind", string(change.Kind)),
			zap.String("connection_id", change.Session.ConnectionID))
	}
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for change := range m.queue {
		m.publish(change)
	}
}

func (m *Mirror) publish(change types.PresenceChange) {
	data, err := json.Marshal(change)
	if err != nil {
		m.log.Error("failed to marshal presence change", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := m.publisher.Publish(ctx, m.channel, string(data)).Err(); err != nil {
		m.log.Warn("presence publish failed",
			zap.String("channel", m.channel),
			zap.String("kind", string(change.Kind)),
			zap.Error(err))
	}
}

// Close publishes what is already queued, then releases the client. Safe to call repeatedly.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()

	var errs []error
	for _, closer := range m.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}
