package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher records every publish and fails on the configured topics
type recordingPublisher struct {
	mu     sync.Mutex
	sent   map[string][][]byte
	failOn map[string]bool
}

func newRecordingPublisher(failOn ...string) *recordingPublisher {
	p := &recordingPublisher{sent: map[string][][]byte{}, failOn: map[string]bool{}}
	for _, topic := range failOn {
		p.failOn[topic] = true
	}
	return p
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[topic] {
		return errors.New("transport unavailable")
	}
	p.sent[topic] = append(p.sent[topic], payload)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[topic])
}

func TestPublishAll_ContinuesPastFailures(t *testing.T) {
	pub := newRecordingPublisher("kitchen.b")

	err := PublishAll(context.Background(), pub, []byte("x"), "order.a", "kitchen.b", "dashboard.c")
	require.Error(t, err)

	var te *TopicError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "kitchen.b", te.Topic)
	assert.Equal(t, 1, pub.count("order.a"))
	assert.Equal(t, 1, pub.count("dashboard.c"))
	assert.Equal(t, []string{"kitchen.b"}, failedTopics(err))
}

func TestMultiPublisher_JoinsErrors(t *testing.T) {
	ok := newRecordingPublisher()
	bad := newRecordingPublisher("order.a")

	err := MultiPublisher{bad, ok}.Publish(context.Background(), "order.a", []byte("x"))
	assert.Error(t, err)
	assert.Equal(t, 1, ok.count("order.a"))

	assert.NoError(t, MultiPublisher{ok}.Publish(context.Background(), "order.b", []byte("y")))
}

func TestRedisPublisher(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db)

	mock.ExpectPublish("kitchen.r1", `{"event":"order.created"}`).SetVal(2)
	mock.ExpectPublish("order.o1", `{}`).SetErr(errors.New("connection reset"))

	assert.NoError(t, pub.Publish(context.Background(), "kitchen.r1", []byte(`{"event":"order.created"}`)))
	assert.Error(t, pub.Publish(context.Background(), "order.o1", []byte(`{}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeAMQP struct {
	topic string
	body  []byte
}

func (f *fakeAMQP) PublishRealtime(_ context.Context, topic string, body []byte) error {
	f.topic, f.body = topic, body
	return nil
}

func TestAMQPPublisher_UsesTopicAsRoutingKey(t *testing.T) {
	f := &fakeAMQP{}
	require.NoError(t, NewAMQPPublisher(f).Publish(context.Background(), "dashboard.r1", []byte("m")))
	assert.Equal(t, "dashboard.r1", f.topic)
	assert.Equal(t, []byte("m"), f.body)
}
