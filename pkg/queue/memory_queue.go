package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryQueue is a bounded in-process queue. Messages are lost on restart.
type MemoryQueue struct {
	config *MemoryQueueConfig

	mu     sync.RWMutex
	topics map[string]*topic
	closed bool
	wg     sync.WaitGroup

	published atomic.Int64
	dropped   atomic.Int64
	handled   atomic.Int64
	failed    atomic.Int64

	onError func(topic string, err error)
}

type topic struct {
	messages   chan []byte
	subscribed bool
}

// MemoryQueueConfig memory queue configuration
type MemoryQueueConfig struct {
	BufferSize int
	// Timeout bounds how long Publish waits for buffer space; zero fails fast.
	Timeout time.Duration
	// OnError observes handler failures.
	OnError func(topic string, err error)
}

// NewMemoryQueue creates a new memory queue instance
func NewMemoryQueue(config *MemoryQueueConfig) *MemoryQueue {
	if config == nil {
		config = &MemoryQueueConfig{}
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}

	return &MemoryQueue{
		config:  config,
		topics:  make(map[string]*topic),
		onError: config.OnError,
	}
}

func (mq *MemoryQueue) topicLocked(name string) *topic {
	t, ok := mq.topics[name]
	if !ok {
		t = &topic{messages: make(chan []byte, mq.config.BufferSize)}
		mq.topics[name] = t
	}
	return t
}

// Publish enqueues message, waiting at most config.Timeout for space.
func (mq *MemoryQueue) Publish(ctx context.Context, name string, message []byte) error {
	mq.mu.Lock()
	if mq.closed {
		mq.mu.Unlock()
		return ErrQueueClosed
	}
	t := mq.topicLocked(name)
	mq.mu.Unlock()

	// Hold the read lock while sending so Close cannot close the channel mid-send.
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	if mq.closed {
		return ErrQueueClosed
	}

	select {
	case t.messages <- message:
		mq.published.Add(1)
		return nil
	default:
	}

	if mq.config.Timeout <= 0 {
		mq.dropped.Add(1)
		return ErrQueueFull
	}

	timer := time.NewTimer(mq.config.Timeout)
	defer timer.Stop()

	select {
	case t.messages <- message:
		mq.published.Add(1)
		return nil
	case <-ctx.Done():
		mq.dropped.Add(1)
		return ctx.Err()
	case <-timer.C:
		mq.dropped.Add(1)
		return ErrQueueFull
	}
}

// Subscribe starts workers for the topic. A topic accepts one subscription.
func (mq *MemoryQueue) Subscribe(ctx context.Context, name string, workers int, handler MessageHandler) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return ErrQueueClosed
	}

	t := mq.topicLocked(name)
	if t.subscribed {
		return ErrAlreadySubscribed
	}
	t.subscribed = true

	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		mq.wg.Add(1)
		go func() {
			defer mq.wg.Done()
			for {
				select {
				case message, ok := <-t.messages:
					if !ok {
						return
					}
					mq.handle(ctx, name, handler, message)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	return nil
}

func (mq *MemoryQueue) handle(ctx context.Context, name string, handler MessageHandler, message []byte) {
	if err := handler(ctx, name, message); err != nil {
		mq.failed.Add(1)
		if mq.onError != nil {
			mq.onError(name, err)
		}
		return
	}
	mq.handled.Add(1)
}

// Close stops publishing, lets workers drain buffered messages, and waits
// for them to exit.
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	if mq.closed {
		mq.mu.Unlock()
		return nil
	}
	mq.closed = true
	for _, t := range mq.topics {
		close(t.messages)
	}
	mq.mu.Unlock()

	mq.wg.Wait()
	return nil
}

// Health checks the health of the queue
func (mq *MemoryQueue) Health() error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return ErrQueueClosed
	}
	return nil
}

// Stats returns queue statistics
func (mq *MemoryQueue) Stats() Stats {
	mq.mu.RLock()
	pending := 0
	for _, t := range mq.topics {
		pending += len(t.messages)
	}
	mq.mu.RUnlock()

	return Stats{
		Published: mq.published.Load(),
		Dropped:   mq.dropped.Load(),
		Handled:   mq.handled.Load(),
		Failed:    mq.failed.Load(),
		Pending:   pending,
	}
}
