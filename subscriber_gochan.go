package msgstream

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var errSubscriberFull = errors.New("subscriber buffer full")

// ChanSubscriber delivers messages through a buffered Go channel.
type ChanSubscriber struct {
	mu     sync.Mutex
	ch     chan Msg
	alerts int
	closed bool
}

// ChanSubscriberMake creates a subscriber buffering up to size messages.
func ChanSubscriberMake(size int) *ChanSubscriber {
	if size <= 0 {
		size = 1
	}
	return &ChanSubscriber{ch: make(chan Msg, size)}
}

// NewMessage queues msg without blocking.
func (s *ChanSubscriber) NewMessage(msg Msg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.ch <- msg:
		logger.Debug("Message queued for subscriber",
			zap.String("key", msg.Key),
			zap.String("id", msg.ID),
		)
		return nil
	default:
		logger.Warn("Subscriber buffer full", zap.String("key", msg.Key))
		return errSubscriberFull
	}
}

func (s *ChanSubscriber) NewMessageAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts++
}

// Alerts returns how many alerts this subscriber received.
func (s *ChanSubscriber) Alerts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts
}

// C exposes the delivery channel. It is closed by Close.
func (s *ChanSubscriber) C() <-chan Msg { return s.ch }

// Receive waits for the next message or for ctx to end.
func (s *ChanSubscriber) Receive(ctx context.Context) (Msg, error) {
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return Msg{}, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return Msg{}, ctx.Err()
	}
}

// Close stops deliveries and closes the channel.
func (s *ChanSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
