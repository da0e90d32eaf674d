package fs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

type payload struct {
	ID  string `json:"id"`
	Seq int    `json:"seq"`
}

func newQueue(t *testing.T, maxRetries int) (*Queue[payload], Config) {
	t.Helper()
	config := Config{BasePath: t.TempDir(), MaxRetries: maxRetries, RetryDelay: 10 * time.Millisecond, PollInterval: 5 * time.Millisecond}
	queue, err := NewQueue[payload](context.Background(), afs.New(), config)
	require.NoError(t, err)
	return queue, config
}

func TestQueue_Order(t *testing.T) {
	queue, _ := newQueue(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 1; i <= 3; i++ {
		require.NoError(t, queue.Publish(ctx, &payload{ID: "e", Seq: i}))
		time.Sleep(time.Millisecond)
	}
	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	for i := 1; i <= 3; i++ {
		msg, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, msg.T().Seq)
		require.NoError(t, msg.Ack())
		assert.Error(t, msg.Ack())
	}
	pending, err = queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestQueue_NackDeadLetter(t *testing.T) {
	queue, _ := newQueue(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, queue.Publish(ctx, &payload{ID: "x"}))

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Nack(errors.New("listener down")))

	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", msg.T().ID)
	require.NoError(t, msg.Nack(errors.New("listener down")))

	dead, err := queue.DeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dead)
}

func TestQueue_RecoversInFlight(t *testing.T) {
	queue, config := newQueue(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, queue.Publish(ctx, &payload{ID: "crash"}))
	_, err := queue.Consume(ctx)
	require.NoError(t, err)

	reopened, err := NewQueue[payload](ctx, afs.New(), config)
	require.NoError(t, err)
	msg, err := reopened.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "crash", msg.T().ID)
	assert.NoError(t, msg.Ack())
}

func TestQueue_ConsumeTimeout(t *testing.T) {
	queue, _ := newQueue(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewQueue_EmptyBasePath(t *testing.T) {
	_, err := NewQueue[payload](context.Background(), afs.New(), Config{})
	assert.Error(t, err)
}
