package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"novel-fork/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	deliveries chan amqp.Delivery
	closed     int
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Qos(int, int, bool) error { return nil }

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeChannel) factory() channelFactory {
	return func() (amqpChannel, error) { return c, nil }
}

type fakeAcker struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
	done   chan struct{}
}

func newFakeAcker() *fakeAcker { return &fakeAcker{done: make(chan struct{}, 16)} }

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	a.acked = append(a.acked, tag)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, _ bool) error {
	a.mu.Lock()
	a.nacked = append(a.nacked, tag)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func (a *fakeAcker) wait(t *testing.T) {
	t.Helper()
	select {
	case <-a.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not settled")
	}
}

type mockInvalidator struct{ mock.Mock }

func (m *mockInvalidator) InvalidateTree(ctx context.Context, storyID int64) error {
	return m.Called(ctx, storyID).Error(0)
}

func TestForkEventPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newForkEventPublisher(ch.factory(), "fork_events", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"fork_events"}, ch.declared)

	forkID := int64(3)
	event := models.ForkEvent{Type: models.EventCommitAppended, StoryID: 1, ForkID: &forkID, UserID: uuid.New(), OccurredAt: time.Now().UTC()}
	require.NoError(t, p.PublishForkEvent(context.Background(), event))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "fork_events", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "commit.appended", msg.Type)

	var decoded models.ForkEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, forkID, *decoded.ForkID)

	ch.publishErr = errors.New("channel closed")
	assert.Error(t, p.PublishForkEvent(context.Background(), event))
}

func TestChapterEventConsumer(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 4)}
	inv := new(mockInvalidator)
	acker := newFakeAcker()
	consumer := newChapterEventConsumer(ch.factory(), "chapter_events", inv, zap.NewNop())

	inv.On("InvalidateTree", mock.Anything, int64(7)).Return(nil).Once()
	inv.On("InvalidateTree", mock.Anything, int64(8)).Return(errors.New("redis down")).Once()

	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming() }()

	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte(`{"story_id":7,"chapter_id":70}`)}
	acker.wait(t)
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte(`not json`)}
	acker.wait(t)
	ch.deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte(`{"story_id":8}`)}
	acker.wait(t)

	consumer.Stop()
	consumer.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, []uint64{1, 3}, acker.acked)
	assert.Equal(t, []uint64{2}, acker.nacked)
	assert.Equal(t, []string{"chapter_events"}, ch.declared)
	inv.AssertExpectations(t)
}
