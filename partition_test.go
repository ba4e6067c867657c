package msgstream

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PartitionedStreamTestFactory creates a key-routed stream with small partitions.
func PartitionedStreamTestFactory(t *testing.T, capacity int) *PartitionedStream[string] {
	t.Helper()
	p, err := PartitionedStreamMake(capacity, nil, WithPartitionCapacity(5))
	require.NoError(t, err)
	return p
}

// Test capacity clamping
func TestPartitionedStreamCapacity(t *testing.T) {
	assert.Equal(t, 1, PartitionedStreamTestFactory(t, 0).Capacity())
	assert.Equal(t, 200, PartitionedStreamTestFactory(t, 500).Capacity())
	p := PartitionedStreamTestFactory(t, 4)
	assert.Equal(t, 4, p.Capacity())
	assert.Equal(t, 8, p.MaxOperations())
	assert.Equal(t, 0, p.PartitionCount())
}

// Test keys route to independent partitions
func TestPartitionedStreamRouting(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 10)

	require.NoError(t, p.Append("orders", "o1"))
	require.NoError(t, p.Append("users", "u1"))
	require.NoError(t, p.Append("orders", "o2"))
	assert.Equal(t, 2, p.PartitionCount())
	assert.Equal(t, []string{"orders", "users"}, p.Keys())

	orders, err := p.Read("orders", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, orders)

	users, err := p.Read("users", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
	assert.Equal(t, 5, p.OperationCount())

	_, err = p.Read("missing", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// Test partition exhaustion
func TestPartitionedStreamFull(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 2)
	require.NoError(t, p.Append("a", "1"))
	require.NoError(t, p.Append("b", "1"))

	err := p.Append("c", "1")
	assert.ErrorIs(t, err, ErrPartitionFull)
	assert.Equal(t, KindPartitionFull, KindOf(err))
}

// Test a failed append creates no partition
func TestPartitionedStreamFailedAppend(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 3)

	assert.ErrorIs(t, p.Append("a", ""), ErrInvalidMessage)
	assert.Equal(t, 0, p.PartitionCount())
	assert.Equal(t, 0, p.OperationCount())
	assert.Empty(t, p.Keys())
}

// Test partition errors propagate
func TestPartitionedStreamPartitionCapacity(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 10)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Append("k", "m"))
	}
	assert.ErrorIs(t, p.Append("k", "m"), ErrCapacityExceeded)
}

// Test the stream-wide governor
func TestPartitionedStreamOperationLimit(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 2)
	require.NoError(t, p.Append("a", "1"))
	require.NoError(t, p.Append("b", "1"))
	require.NoError(t, p.Append("a", "2"))
	_, err := p.Read("a", 0, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, p.Append("b", "2"), ErrOperationLimitExceeded)
	_, err = p.Read("b", 0, 1)
	assert.ErrorIs(t, err, ErrOperationLimitExceeded)
}

// Test reset clears partitions and bindings
func TestPartitionedStreamReset(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 2)
	require.NoError(t, p.Append("a", "1"))
	require.NoError(t, p.Append("b", "1"))

	require.NoError(t, p.Reset())
	assert.Equal(t, 0, p.PartitionCount())
	assert.Equal(t, 0, p.OperationCount())
	assert.Empty(t, p.Keys())
	_, err := p.Read("a", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidKey)

	require.NoError(t, p.Append("c", "1"))
	s, err := p.Partition(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, s.Messages())
}

// Test fixed integer keys
func TestFixedPartitionedStream(t *testing.T) {
	p, err := FixedPartitionedStreamMake(3, nil, WithPartitionCapacity(5))
	require.NoError(t, err)

	require.NoError(t, p.Append(2, "two"))
	require.NoError(t, p.Append(3, "three"))
	assert.Equal(t, []int{2, 3}, p.Keys())
	assert.Equal(t, 2, p.PartitionCount())

	s, err := p.Partition(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, s.Messages())

	assert.ErrorIs(t, p.Append(0, "x"), ErrInvalidKey)
	assert.ErrorIs(t, p.Append(4, "x"), ErrInvalidKey)
	_, err = p.Read(1, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidKey, "key 1 has no partition yet")
}

// Test injected streams are adopted
func TestPartitionedStreamInjected(t *testing.T) {
	a := BoundedStreamTestFactory(t, 3, "a")
	b := BoundedStreamTestFactory(t, 3, "b")

	p, err := PartitionedStreamMake(3, []Stream{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, p.PartitionCount())
	assert.Equal(t, []string{"1", "2"}, p.Keys())

	msgs, err := p.Read("2", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, msgs)

	_, err = PartitionedStreamMake(1, []Stream{a, b})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = PartitionedStreamMake(2, []Stream{a, nil})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// Test index access and initialization
func TestPartitionedStreamIndexAccess(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 2)

	_, err := p.Partition(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = p.Partition(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, p.InitializePartition(5, 10), ErrIndexOutOfRange)
	assert.ErrorIs(t, p.SetPartition(0, nil), ErrInvalidArgument)

	require.NoError(t, p.InitializePartition(1, 10))
	s, err := p.Partition(1)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Capacity())

	s0, err := p.Partition(0)
	require.NoError(t, err)
	require.NoError(t, s0.Append("direct"))
	require.NoError(t, p.Append("k", "routed"))
	assert.Equal(t, []string{"direct", "routed"}, s0.Messages(), "index access returns the owned stream")
}

// Test a durable stream substituted into a slot
func TestPartitionedStreamDurableSlot(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 5)
	path := filepath.Join(t.TempDir(), "partition.log")
	d, err := DurableStreamMake(5, path)
	require.NoError(t, err)
	require.NoError(t, p.SetPartition(0, d))

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, p.Append("durable", m))
	}
	assert.Equal(t, []string{"a", "b", "c"}, fileLines(t, path))

	require.NoError(t, p.Append("durable", "d"))
	clone, err := p.Clone()
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.Equal(t, []string{"a", "b", "c", "d"}, fileLines(t, path), "close flushes owned durable partitions")

	msgs, err := clone.Read("durable", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, msgs)
	s, err := clone.Partition(0)
	require.NoError(t, err)
	assert.IsType(t, &BoundedStream{}, s)
}

// Test replacing a durable slot closes it
func TestPartitionedStreamReplaceClosesDurable(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 1)
	d, err := DurableStreamMake(5, filepath.Join(t.TempDir(), "p.log"))
	require.NoError(t, err)
	require.NoError(t, p.SetPartition(0, d))
	require.NoError(t, p.InitializePartition(0, 5))

	assert.ErrorIs(t, d.Append("x"), ErrClosed)
}

// Test merging partitioned streams
func TestPartitionedStreamMergeInto(t *testing.T) {
	a := PartitionedStreamTestFactory(t, 3)
	require.NoError(t, a.Append("x", "a1"))
	require.NoError(t, a.Append("x", "a2"))

	b := PartitionedStreamTestFactory(t, 3)
	require.NoError(t, b.Append("x", "b1"))
	require.NoError(t, b.Append("y", "b2"))

	require.NoError(t, a.MergeInto(b))
	assert.Equal(t, []string{"x", "y"}, a.Keys())
	assert.Equal(t, 2, a.PartitionCount())
	assert.Equal(t, 4, a.OperationCount())

	x, err := a.Partition(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "b1"}, x.Messages())
	y, err := a.Partition(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, y.Messages())

	assert.ErrorIs(t, a.MergeInto(PartitionedStreamTestFactory(t, 4)), ErrInvalidArgument)
	assert.ErrorIs(t, a.MergeInto(nil), ErrInvalidArgument)
}

// Test merge checks every partition before changing anything
func TestPartitionedStreamMergeAtomic(t *testing.T) {
	a := PartitionedStreamTestFactory(t, 2)
	require.NoError(t, a.Append("x", "1"))
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Append("y", "m"))
	}

	b := PartitionedStreamTestFactory(t, 2)
	require.NoError(t, b.Append("x", "2"))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Append("y", "n"))
	}

	assert.ErrorIs(t, a.MergeInto(b), ErrCapacityExceeded)
	x, err := a.Partition(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, x.Messages(), "first partition untouched")
}

// Test merge rejects a key bound to two slots
func TestPartitionedStreamMergeKeyConflict(t *testing.T) {
	a := PartitionedStreamTestFactory(t, 2)
	require.NoError(t, a.Append("k", "1"))

	b := PartitionedStreamTestFactory(t, 2)
	require.NoError(t, b.Append("other", "1"))
	require.NoError(t, b.Append("k", "2"))

	assert.ErrorIs(t, a.MergeInto(b), ErrInvalidArgument)
}

// Test a durable partition that keeps a message after a failed flush stays bound to its key
func TestPartitionedStreamDurableFlushFailure(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 3)
	j := RamJournalMake()
	d, err := DurableStreamOnJournal(5, j, WithWriteThreshold(1))
	require.NoError(t, err)
	require.NoError(t, p.SetPartition(0, d))
	require.NoError(t, j.Close())

	err = p.Append("k1", "secret")
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, []string{"k1"}, p.Keys())
	assert.Equal(t, 1, p.PartitionCount())
	assert.Equal(t, 1, p.OperationCount())

	require.NoError(t, p.Append("k2", "n"))
	assert.Equal(t, []string{"k1", "k2"}, p.Keys())
	s, ok := p.PartitionFor("k1")
	require.True(t, ok)
	assert.Equal(t, []string{"secret"}, s.Messages())
	s, ok = p.PartitionFor("k2")
	require.True(t, ok)
	assert.Equal(t, []string{"n"}, s.Messages())
}

// Test lookup of a partition by key
func TestPartitionedStreamPartitionFor(t *testing.T) {
	p := PartitionedStreamTestFactory(t, 3)
	require.NoError(t, p.Append("a", "1"))
	require.NoError(t, p.Append("b", "2"))
	require.NoError(t, p.Reset())
	require.NoError(t, p.Append("b", "3"))

	s, ok := p.PartitionFor("b")
	require.True(t, ok)
	assert.Equal(t, []string{"3"}, s.Messages())
	_, ok = p.PartitionFor("a")
	assert.False(t, ok)
}

// Test clone and close leave the active partitions gauge where it started
func TestPartitionedStreamActiveGauge(t *testing.T) {
	before := testutil.ToFloat64(partitionsActive)

	p := PartitionedStreamTestFactory(t, 3)
	require.NoError(t, p.Append("a", "1"))
	require.NoError(t, p.Append("b", "2"))
	assert.Equal(t, before+2, testutil.ToFloat64(partitionsActive))

	for i := 0; i < 3; i++ {
		c, err := p.Clone()
		require.NoError(t, err)
		assert.Equal(t, before+4, testutil.ToFloat64(partitionsActive))
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
	}
	assert.Equal(t, before+2, testutil.ToFloat64(partitionsActive))

	require.NoError(t, p.Close())
	assert.Equal(t, before, testutil.ToFloat64(partitionsActive))
	require.NoError(t, p.Reset())
	assert.Equal(t, before, testutil.ToFloat64(partitionsActive))
}
