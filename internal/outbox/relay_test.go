package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/metrics"
)

// memStore keeps rows in memory and mimics sent_at bookkeeping
type memStore struct {
	mu   sync.Mutex
	rows []Message
	sent map[int64]bool
}

func (s *memStore) Dispatch(ctx context.Context, limit int, send SendFunc) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sent, failed int
	for i := range s.rows {
		m := &s.rows[i]
		if s.sent[m.ID] {
			continue
		}
		if sent+failed == limit {
			break
		}
		if err := send(ctx, *m); err != nil {
			m.Attempts++
			failed++
			continue
		}
		m.Attempts++
		s.sent[m.ID] = true
		sent++
	}
	return sent, failed, nil
}

type flakyPublisher struct {
	mu        sync.Mutex
	failFirst int
	published []string
}

func (p *flakyPublisher) PublishEvent(_ context.Context, routingKey, eventID string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFirst > 0 {
		p.failFirst--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, eventID)
	return nil
}

func newStore(n int) *memStore {
	s := &memStore{sent: map[int64]bool{}}
	for i := 1; i <= n; i++ {
		s.rows = append(s.rows, Message{
			ID:          int64(i),
			EventID:     uuid.New(),
			EventType:   "order.completed",
			AggregateID: uuid.New(),
			RoutingKey:  "order.completed",
			Payload:     []byte(`{}`),
		})
	}
	return s
}

func TestRelay_RunOnce_RetriesFailedRowsLater(t *testing.T) {
	store := newStore(3)
	pub := &flakyPublisher{failFirst: 1}
	m := metrics.NewNop()
	relay := NewRelay(store, pub, m, logger.Discard(), time.Second, 10)

	sent, failed, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)

	sent, failed, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, failed)

	sent, _, _ = relay.RunOnce(context.Background())
	assert.Equal(t, 0, sent)

	assert.Len(t, pub.published, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxFailures))
	assert.Equal(t, 2, store.rows[0].Attempts)
}

func TestRelay_RunDrainsFullBatchesAndStops(t *testing.T) {
	store := newStore(5)
	pub := &flakyPublisher{}
	relay := NewRelay(store, pub, metrics.NewNop(), logger.Discard(), time.Hour, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.published) == 5
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
