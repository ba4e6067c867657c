package msgstream

import (
	"slices"
	"unicode/utf8"

	"go.uber.org/zap"
)

// BoundedStream is a fixed-capacity, append-only sequence of messages with an
// operation governor counting appends and reads until the next Reset.
//
// A BoundedStream is not safe for concurrent use.
type BoundedStream struct {
	opts           Options
	label          string
	capacity       int
	maxOperations  int
	operationCount int
	messages       []string
}

// BoundedStreamMake creates a stream whose capacity is clamped to [1, MaxCapacity].
func BoundedStreamMake(capacity int, options ...Option) *BoundedStream {
	return newBoundedStream(capacity, applyOptions(options...), streamBounded)
}

func newBoundedStream(capacity int, opts Options, label string) *BoundedStream {
	capacity = clampCapacity(capacity, opts.MaxCapacity)
	return &BoundedStream{
		opts:          opts,
		label:         label,
		capacity:      capacity,
		maxOperations: capacity * opts.OperationsMultiplier,
		messages:      make([]string, 0, capacity),
	}
}

func (s *BoundedStream) Capacity() int       { return s.capacity }
func (s *BoundedStream) MessageCount() int   { return len(s.messages) }
func (s *BoundedStream) OperationCount() int { return s.operationCount }
func (s *BoundedStream) MaxOperations() int  { return s.maxOperations }

func (s *BoundedStream) isFull() bool {
	return len(s.messages) >= s.capacity
}

func (s *BoundedStream) operationLimit() bool {
	return s.operationCount >= s.maxOperations
}

// validMessage reports whether message is non-empty and within MaxStringLength characters.
func (s *BoundedStream) validMessage(message string) bool {
	return message != "" && utf8.RuneCountInString(message) <= s.opts.MaxStringLength
}

// checkAppend applies the append preconditions in order: capacity, governor, message.
func (s *BoundedStream) checkAppend(op, message string) error {
	if s.isFull() {
		return newError(op, KindCapacityExceeded, "capacity %d", s.capacity)
	}
	if s.operationLimit() {
		return newError(op, KindOperationLimitExceeded, "limit %d", s.maxOperations)
	}
	if !s.validMessage(message) {
		return newError(op, KindInvalidMessage, "length %d, max %d",
			utf8.RuneCountInString(message), s.opts.MaxStringLength)
	}
	return nil
}

// Append stores message at the end of the stream.
func (s *BoundedStream) Append(message string) error {
	if err := s.checkAppend("append", message); err != nil {
		return reject(s.label, err)
	}
	s.push(message)
	return nil
}

// push stores an already validated message and charges the governor.
func (s *BoundedStream) push(message string) {
	s.messages = append(s.messages, message)
	s.operationCount++
	messagesAppended.WithLabelValues(s.label).Inc()
}

// ReadRange returns a copy of the messages in [start, end).
func (s *BoundedStream) ReadRange(start, end int) ([]string, error) {
	if s.operationLimit() {
		return nil, reject(s.label, newError("read", KindOperationLimitExceeded, "limit %d", s.maxOperations))
	}
	if start < 0 || end <= start || start >= len(s.messages) || end > len(s.messages) {
		return nil, reject(s.label, newError("read", KindInvalidRange,
			"[%d, %d) of %d messages", start, end, len(s.messages)))
	}
	out := make([]string, end-start)
	copy(out, s.messages[start:end])
	s.operationCount++
	rangesRead.WithLabelValues(s.label).Inc()
	return out, nil
}

// Reset drops all messages and zeroes the governor. Capacity and the
// operation limit are kept.
func (s *BoundedStream) Reset() error {
	s.clear()
	logger.Debug("Stream reset", zap.String("stream", s.label), zap.Int("capacity", s.capacity))
	return nil
}

func (s *BoundedStream) clear() {
	clear(s.messages)
	s.messages = s.messages[:0]
	s.operationCount = 0
}

// Messages returns a copy of every stored message.
func (s *BoundedStream) Messages() []string {
	return slices.Clone(s.messages)
}

// Equal reports whether both streams have the same capacity and the same
// messages in the same order.
func (s *BoundedStream) Equal(other *BoundedStream) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.capacity == other.capacity && slices.Equal(s.messages, other.messages)
}

// Clone returns an independent deep copy, governor state included.
func (s *BoundedStream) Clone() *BoundedStream {
	c := *s
	c.messages = make([]string, len(s.messages), s.capacity)
	copy(c.messages, s.messages)
	return &c
}

// MergeInto appends every message of other to s. The merge is all or
// nothing: it fails before mutating s when the combined count exceeds the
// capacity of s or when any message of other is not valid for s.
// The governor is not charged.
func (s *BoundedStream) MergeInto(other Stream) error {
	incoming := other.Messages()
	if err := s.checkMerge(incoming); err != nil {
		return reject(s.label, err)
	}
	s.messages = append(s.messages, incoming...)
	return nil
}

func (s *BoundedStream) checkMerge(incoming []string) error {
	if len(s.messages)+len(incoming) > s.capacity {
		return newError("merge", KindCapacityExceeded, "%d + %d messages, capacity %d",
			len(s.messages), len(incoming), s.capacity)
	}
	for _, m := range incoming {
		if !s.validMessage(m) {
			return newError("merge", KindInvalidMessage, "length %d, max %d",
				utf8.RuneCountInString(m), s.opts.MaxStringLength)
		}
	}
	return nil
}

// Combine builds a new stream with the summed capacity of a and b holding
// the messages of a followed by those of b, appended through Append. The
// summed capacity is still clamped to MaxCapacity, in which case Combine may
// fail with a capacity error.
func Combine(a, b Stream, options ...Option) (*BoundedStream, error) {
	out := BoundedStreamMake(a.Capacity()+b.Capacity(), options...)
	for _, src := range []Stream{a, b} {
		for _, m := range src.Messages() {
			if err := out.Append(m); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
