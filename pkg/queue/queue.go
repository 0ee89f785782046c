package queue

import (
	"context"
	"errors"
)

// Queue defines the interface for message queue operations
type Queue interface {
	// Publish hands a message to the topic without waiting for consumers.
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe starts workers that feed messages from topic to handler.
	Subscribe(ctx context.Context, topic string, workers int, handler MessageHandler) error

	// Close stops accepting messages and waits for in-flight handlers.
	Close() error

	// Health reports whether the queue accepts messages.
	Health() error
}

// MessageHandler handles incoming messages
type MessageHandler func(ctx context.Context, topic string, message []byte) error

// Stats represents queue statistics
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Handled   int64 `json:"handled"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
}

var (
	ErrQueueClosed       = errors.New("queue is closed")
	ErrQueueFull         = errors.New("queue is full")
	ErrAlreadySubscribed = errors.New("topic already has subscribers")
)
