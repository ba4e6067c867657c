package msgstream

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriberStream publishes messages into a PartitionedStream and fans each
// stored message out to its subscribers.
type SubscriberStream[K comparable] struct {
	mu           sync.Mutex
	partitions   *PartitionedStream[K]
	subscribers  []Subscriber
	messageCount int
}

// SubscriberStreamMake wraps partitions, which the SubscriberStream now owns.
func SubscriberStreamMake[K comparable](partitions *PartitionedStream[K], subscribers ...Subscriber) (*SubscriberStream[K], error) {
	if partitions == nil {
		return nil, newError("new subscriber stream", KindInvalidArgument, "nil partitioned stream")
	}
	s := &SubscriberStream[K]{partitions: partitions}
	for _, sub := range subscribers {
		if err := s.AddSubscriber(sub); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Publish appends payload under key. Once stored, the first subscriber is
// alerted and every subscriber receives the message. Delivery failures do
// not undo the append; they are returned joined.
func (s *SubscriberStream[K]) Publish(key K, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.partitions.Append(key, payload); err != nil {
		logger.Debug("Publish rejected", zap.Any("key", key), zap.Error(err))
		return err
	}
	s.messageCount++

	msg := Msg{
		ID:        uuid.NewString(),
		Key:       fmt.Sprint(key),
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}

	if len(s.subscribers) > 0 {
		s.subscribers[0].NewMessageAlert()
	}

	var errs []error
	for i, sub := range s.subscribers {
		if err := sub.NewMessage(msg); err != nil {
			logger.Warn("Delivery failed",
				zap.String("key", msg.Key),
				zap.String("msgID", msg.ID),
				zap.Int("subscriber", i),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("subscriber %d: %w", i, err))
			continue
		}
		notifications.Inc()
	}
	return errors.Join(errs...)
}

// Read returns messages [start, end) stored under key.
func (s *SubscriberStream[K]) Read(key K, start, end int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partitions.Read(key, start, end)
}

// AddSubscriber registers sub. Adding a subscriber twice is a no-op.
func (s *SubscriberStream[K]) AddSubscriber(sub Subscriber) error {
	if sub == nil {
		return newError("add subscriber", KindInvalidArgument, "nil subscriber")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.subscribers, sub) {
		s.subscribers = append(s.subscribers, sub)
	}
	return nil
}

// RemoveSubscriber unregisters sub if present.
func (s *SubscriberStream[K]) RemoveSubscriber(sub Subscriber) error {
	if sub == nil {
		return newError("remove subscriber", KindInvalidArgument, "nil subscriber")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.subscribers, sub); i >= 0 {
		s.subscribers = slices.Delete(s.subscribers, i, i+1)
	}
	return nil
}

// Subscribers returns the number of registered subscribers.
func (s *SubscriberStream[K]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// MessageCount returns how many messages were published successfully.
func (s *SubscriberStream[K]) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageCount
}

// Partitions returns the underlying partitioned stream.
func (s *SubscriberStream[K]) Partitions() *PartitionedStream[K] { return s.partitions }

// Close releases the partitions.
func (s *SubscriberStream[K]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partitions.Close()
}
