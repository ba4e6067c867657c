package msgstream

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// routing selects how keys are bound to partition slots.
type routing int

const (
	// routeByKey binds an unseen key to the next free slot.
	routeByKey routing = iota
	// routeFixed accepts only the default keys 1..capacity, one per slot.
	routeFixed
)

type partition[K comparable] struct {
	key    K
	active bool
	stream Stream
}

// PartitionedStream multiplexes up to capacity independent streams behind
// keys. Every slot is pre-allocated; a slot becomes an active partition the
// first time a message is appended under its key. Key lookup is a linear scan
// in slot order.
//
// A stream-wide governor caps appends and reads across all partitions at
// capacity * OperationsMultiplier until Reset.
type PartitionedStream[K comparable] struct {
	opts           Options
	routing        routing
	defaultKey     func(slot int) K
	capacity       int
	maxOperations  int
	operationCount int
	partitionCount int
	slots          []partition[K]
	closed         bool
}

// PartitionedStreamMake creates a key-routed stream: any string key is bound
// to the next free slot on first append. streams, when given, are adopted
// into the first slots as active partitions under the keys "1", "2", ...
func PartitionedStreamMake(capacity int, streams []Stream, options ...Option) (*PartitionedStream[string], error) {
	return newPartitionedStream(capacity, routeByKey, func(slot int) string {
		return strconv.Itoa(slot + 1)
	}, streams, applyOptions(options...))
}

// FixedPartitionedStreamMake creates a stream whose keys are the integers
// 1..capacity, slot i answering to key i+1. streams are adopted as with
// PartitionedStreamMake.
func FixedPartitionedStreamMake(capacity int, streams []Stream, options ...Option) (*PartitionedStream[int], error) {
	return newPartitionedStream(capacity, routeFixed, func(slot int) int {
		return slot + 1
	}, streams, applyOptions(options...))
}

func newPartitionedStream[K comparable](capacity int, r routing, defaultKey func(int) K, streams []Stream, opts Options) (*PartitionedStream[K], error) {
	capacity = clampCapacity(capacity, opts.MaxCapacity)
	if len(streams) > capacity {
		return nil, newError("new partitioned stream", KindInvalidArgument,
			"%d streams for %d partitions", len(streams), capacity)
	}
	p := &PartitionedStream[K]{
		opts:          opts,
		routing:       r,
		defaultKey:    defaultKey,
		capacity:      capacity,
		maxOperations: capacity * opts.OperationsMultiplier,
		slots:         make([]partition[K], capacity),
	}
	for i := range p.slots {
		p.slots[i] = partition[K]{key: defaultKey(i), stream: newBoundedStream(opts.PartitionCapacity, opts, streamBounded)}
	}
	for i, s := range streams {
		if s == nil {
			return nil, newError("new partitioned stream", KindInvalidArgument, "nil stream at %d", i)
		}
		p.slots[i].stream = s
		p.slots[i].active = true
	}
	p.partitionCount = len(streams)
	partitionsActive.Add(float64(len(streams)))
	return p, nil
}

func (p *PartitionedStream[K]) Capacity() int       { return p.capacity }
func (p *PartitionedStream[K]) PartitionCount() int { return p.partitionCount }
func (p *PartitionedStream[K]) OperationCount() int { return p.operationCount }
func (p *PartitionedStream[K]) MaxOperations() int  { return p.maxOperations }

// Keys returns the keys of the active partitions in slot order.
func (p *PartitionedStream[K]) Keys() []K {
	keys := make([]K, 0, p.partitionCount)
	for _, s := range p.slots {
		if s.active {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// PartitionFor returns the stream of the partition bound to key.
func (p *PartitionedStream[K]) PartitionFor(key K) (Stream, bool) {
	if i := p.findActive(key); i >= 0 {
		return p.slots[i].stream, true
	}
	return nil, false
}

// findActive returns the first active slot bound to key, or -1.
func (p *PartitionedStream[K]) findActive(key K) int {
	for i, s := range p.slots {
		if s.active && s.key == key {
			return i
		}
	}
	return -1
}

// resolve maps key to a slot for an append. bound is false when the append
// would create a new partition.
func (p *PartitionedStream[K]) resolve(key K) (slot int, bound bool, err error) {
	if i := p.findActive(key); i >= 0 {
		return i, true, nil
	}
	if p.routing == routeFixed {
		for i, s := range p.slots {
			if s.key == key {
				return i, false, nil
			}
		}
		return -1, false, newError("append", KindInvalidKey, "%v not in 1..%d", key, p.capacity)
	}
	if p.partitionCount >= p.capacity {
		return -1, false, newError("append", KindPartitionFull, "%d partitions in use", p.partitionCount)
	}
	for i, s := range p.slots {
		if !s.active {
			return i, false, nil
		}
	}
	return -1, false, newError("append", KindPartitionFull, "%d partitions in use", p.partitionCount)
}

// Append routes message to the partition for key, creating the partition
// when the key is new. A partition is only created once it holds the message.
func (p *PartitionedStream[K]) Append(key K, message string) error {
	slot, bound, err := p.resolve(key)
	if err != nil {
		return reject(streamPartitioned, err)
	}
	if p.operationCount >= p.maxOperations {
		return reject(streamPartitioned, newError("append", KindOperationLimitExceeded, "limit %d", p.maxOperations))
	}
	// A durable partition can keep the message and still fail its flush;
	// the key is bound whenever the partition grew.
	st := p.slots[slot].stream
	before := st.MessageCount()
	appendErr := st.Append(message)
	if appendErr != nil && st.MessageCount() <= before {
		return appendErr
	}
	if !bound {
		p.slots[slot].key = key
		p.slots[slot].active = true
		p.partitionCount++
		p.trackActive(1)
		logger.Debug("Partition created", zap.Any("key", key), zap.Int("slot", slot))
	}
	p.operationCount++
	return appendErr
}

// Read returns messages [start, end) of the partition bound to key.
func (p *PartitionedStream[K]) Read(key K, start, end int) ([]string, error) {
	slot := p.findActive(key)
	if slot < 0 {
		return nil, reject(streamPartitioned, newError("read", KindInvalidKey, "%v", key))
	}
	if p.operationCount >= p.maxOperations {
		return nil, reject(streamPartitioned, newError("read", KindOperationLimitExceeded, "limit %d", p.maxOperations))
	}
	out, err := p.slots[slot].stream.ReadRange(start, end)
	if err != nil {
		return nil, err
	}
	p.operationCount++
	return out, nil
}

func (p *PartitionedStream[K]) checkIndex(op string, index int) error {
	if index < 0 || index >= p.capacity {
		return reject(streamPartitioned, newError(op, KindIndexOutOfRange, "%d not in [0, %d)", index, p.capacity))
	}
	return nil
}

// Partition returns the stream held in slot index.
func (p *PartitionedStream[K]) Partition(index int) (Stream, error) {
	if err := p.checkIndex("partition", index); err != nil {
		return nil, err
	}
	return p.slots[index].stream, nil
}

// SetPartition replaces the stream in slot index, taking ownership of s and
// closing the stream it replaces. The slot keeps its key binding.
func (p *PartitionedStream[K]) SetPartition(index int, s Stream) error {
	if err := p.checkIndex("set partition", index); err != nil {
		return err
	}
	if s == nil {
		return reject(streamPartitioned, newError("set partition", KindInvalidArgument, "nil stream"))
	}
	old := p.slots[index].stream
	p.slots[index].stream = s
	if old != s {
		if err := closeStream(old); err != nil {
			logger.Warn("Failed to close replaced partition", zap.Int("slot", index), zap.Error(err))
		}
	}
	return nil
}

// InitializePartition replaces slot index with a new empty BoundedStream.
func (p *PartitionedStream[K]) InitializePartition(index, capacity int) error {
	return p.SetPartition(index, BoundedStreamMake(capacity, WithOptions(p.opts)))
}

// Reset clears every partition, discards all key bindings and zeroes the
// governor. Slots get their default keys back.
func (p *PartitionedStream[K]) Reset() error {
	var errs []error
	for i := range p.slots {
		if err := p.slots[i].stream.Reset(); err != nil {
			errs = append(errs, fmt.Errorf("partition %d: %w", i, err))
		}
		p.slots[i].key = p.defaultKey(i)
		p.slots[i].active = false
	}
	p.trackActive(-p.partitionCount)
	p.partitionCount = 0
	p.operationCount = 0
	return errors.Join(errs...)
}

// MergeInto merges other into p slot by slot. Both streams must have the
// same capacity, and every slot pair must fit the capacity of the slot in p;
// both are checked before anything changes. A slot active only in other
// becomes active in p under the key from other. Operation counts are summed
// up to the limit of p.
func (p *PartitionedStream[K]) MergeInto(other *PartitionedStream[K]) error {
	if other == nil || other.capacity != p.capacity {
		return reject(streamPartitioned, newError("merge", KindInvalidArgument, "partition capacities differ"))
	}
	if err := p.checkMerge(other); err != nil {
		return reject(streamPartitioned, err)
	}

	for i := range p.slots {
		src := other.slots[i]
		if src.stream.MessageCount() > 0 {
			if err := p.slots[i].stream.MergeInto(src.stream); err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
		}
		if src.active && !p.slots[i].active {
			p.slots[i].key = src.key
			p.slots[i].active = true
			p.partitionCount++
			p.trackActive(1)
		}
	}
	p.operationCount = min(p.operationCount+other.operationCount, p.maxOperations)
	return nil
}

// mergeChecker is implemented by streams that can validate a merge up front.
type mergeChecker interface {
	checkMerge(incoming []string) error
}

func (p *PartitionedStream[K]) checkMerge(other *PartitionedStream[K]) error {
	for i, dst := range p.slots {
		src := other.slots[i]
		if mc, ok := dst.stream.(mergeChecker); ok {
			if err := mc.checkMerge(src.stream.Messages()); err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
		} else if n := dst.stream.MessageCount() + src.stream.MessageCount(); n > dst.stream.Capacity() {
			return newError("merge", KindCapacityExceeded, "partition %d needs %d of %d", i, n, dst.stream.Capacity())
		}
		if src.active && !dst.active {
			if j := p.findActive(src.key); j >= 0 {
				return newError("merge", KindInvalidArgument, "key %v bound to partitions %d and %d", src.key, j, i)
			}
		}
	}
	return nil
}

// Clone returns a deep in-memory copy. Durable partitions are copied as
// plain BoundedStreams; their journals are not shared.
func (p *PartitionedStream[K]) Clone() (*PartitionedStream[K], error) {
	c := *p
	c.closed = false
	c.slots = make([]partition[K], len(p.slots))
	for i, s := range p.slots {
		switch st := s.stream.(type) {
		case *DurableStream:
			s.stream = st.Snapshot()
		case *BoundedStream:
			s.stream = st.Clone()
		default:
			return nil, newError("clone", KindInvalidArgument, "partition %d of type %T cannot be copied", i, st)
		}
		c.slots[i] = s
	}
	partitionsActive.Add(float64(c.partitionCount))
	return &c, nil
}

// trackActive moves the active partitions gauge; a closed stream no longer counts.
func (p *PartitionedStream[K]) trackActive(delta int) {
	if !p.closed {
		partitionsActive.Add(float64(delta))
	}
}

// Close releases every partition that owns external resources and removes
// its partitions from the active gauge.
func (p *PartitionedStream[K]) Close() error {
	if p.closed {
		return nil
	}
	p.trackActive(-p.partitionCount)
	p.closed = true
	var errs []error
	for i, s := range p.slots {
		if err := closeStream(s.stream); err != nil {
			errs = append(errs, fmt.Errorf("partition %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
