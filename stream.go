package msgstream

import "io"

// Stream is the capability set shared by BoundedStream and DurableStream.
// A PartitionedStream holds its partitions through this interface so a
// durable stream can be substituted into any slot.
type Stream interface {
	Append(message string) error
	ReadRange(start, end int) ([]string, error)
	Reset() error
	MergeInto(other Stream) error

	// Messages returns a copy of the stored messages without counting as an operation.
	Messages() []string
	MessageCount() int
	Capacity() int
}

var (
	_ Stream = (*BoundedStream)(nil)
	_ Stream = (*DurableStream)(nil)

	_ io.Closer = (*DurableStream)(nil)
)

// closeStream releases s if it owns external resources.
func closeStream(s Stream) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
