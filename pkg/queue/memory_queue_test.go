package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		mq := NewMemoryQueue(nil)
		defer mq.Close()

		received := make(chan []byte, 1)
		err := mq.Subscribe(ctx, "orders", 1, func(ctx context.Context, topic string, msg []byte) error {
			received <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, mq.Publish(ctx, "orders", []byte("order-1")))

		select {
		case msg := <-received:
			assert.Equal(t, []byte("order-1"), msg)
		case <-time.After(time.Second):
			t.Fatal("message not received within timeout")
		}
	})

	t.Run("MultipleWorkers", func(t *testing.T) {
		mq := NewMemoryQueue(&MemoryQueueConfig{BufferSize: 64})

		var mu sync.Mutex
		seen := make(map[string]bool)
		err := mq.Subscribe(ctx, "orders", 4, func(ctx context.Context, topic string, msg []byte) error {
			mu.Lock()
			seen[string(msg)] = true
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			require.NoError(t, mq.Publish(ctx, "orders", []byte(fmt.Sprintf("order-%d", i))))
		}

		require.NoError(t, mq.Close())

		assert.Len(t, seen, 20)
		stats := mq.Stats()
		assert.Equal(t, int64(20), stats.Published)
		assert.Equal(t, int64(20), stats.Handled)
	})

	t.Run("FullBufferFailsFast", func(t *testing.T) {
		mq := NewMemoryQueue(&MemoryQueueConfig{BufferSize: 1})
		defer mq.Close()

		require.NoError(t, mq.Publish(ctx, "orders", []byte("first")))
		assert.ErrorIs(t, mq.Publish(ctx, "orders", []byte("second")), ErrQueueFull)
		assert.Equal(t, int64(1), mq.Stats().Dropped)
		assert.Equal(t, 1, mq.Stats().Pending)
	})

	t.Run("FullBufferWaitsForTimeout", func(t *testing.T) {
		mq := NewMemoryQueue(&MemoryQueueConfig{BufferSize: 1, Timeout: 20 * time.Millisecond})
		defer mq.Close()

		require.NoError(t, mq.Publish(ctx, "orders", []byte("first")))

		start := time.Now()
		assert.ErrorIs(t, mq.Publish(ctx, "orders", []byte("second")), ErrQueueFull)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("HandlerErrorsAreObserved", func(t *testing.T) {
		errs := make(chan error, 1)
		mq := NewMemoryQueue(&MemoryQueueConfig{
			OnError: func(topic string, err error) { errs <- err },
		})

		boom := errors.New("boom")
		require.NoError(t, mq.Subscribe(ctx, "orders", 1, func(context.Context, string, []byte) error {
			return boom
		}))
		require.NoError(t, mq.Publish(ctx, "orders", []byte("x")))

		select {
		case err := <-errs:
			assert.Equal(t, boom, err)
		case <-time.After(time.Second):
			t.Fatal("handler error not observed")
		}

		require.NoError(t, mq.Close())
		assert.Equal(t, int64(1), mq.Stats().Failed)
	})

	t.Run("SingleSubscription", func(t *testing.T) {
		mq := NewMemoryQueue(nil)
		defer mq.Close()

		noop := func(context.Context, string, []byte) error { return nil }
		require.NoError(t, mq.Subscribe(ctx, "orders", 1, noop))
		assert.ErrorIs(t, mq.Subscribe(ctx, "orders", 1, noop), ErrAlreadySubscribed)
	})

	t.Run("ClosedQueue", func(t *testing.T) {
		mq := NewMemoryQueue(nil)
		require.NoError(t, mq.Close())
		require.NoError(t, mq.Close())

		assert.ErrorIs(t, mq.Publish(ctx, "orders", []byte("x")), ErrQueueClosed)
		assert.ErrorIs(t, mq.Health(), ErrQueueClosed)
	})
}
