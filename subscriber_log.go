package msgstream

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// LogSubscriber writes every delivery to a zap logger and keeps the messages
// until they are viewed.
type LogSubscriber struct {
	mu     sync.Mutex
	log    *zap.Logger
	unseen []Msg
}

// LogSubscriberMake creates a subscriber logging to l, or to the package logger when l is nil.
func LogSubscriberMake(l *zap.Logger) *LogSubscriber {
	if l == nil {
		l = logger
	}
	return &LogSubscriber{log: l}
}

func (s *LogSubscriber) NewMessage(msg Msg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unseen = append(s.unseen, msg)
	s.log.Info("Message received",
		zap.String("key", msg.Key),
		zap.String("id", msg.ID),
		zap.String("payload", msg.Payload),
	)
	return nil
}

func (s *LogSubscriber) NewMessageAlert() {
	s.log.Info("New message alert")
}

// ViewMessages returns the messages received since the last call and forgets them.
func (s *LogSubscriber) ViewMessages() []Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.unseen)
	s.unseen = nil
	return out
}
