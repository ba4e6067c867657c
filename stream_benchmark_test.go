package msgstream

import (
	"path/filepath"
	"strconv"
	"testing"
)

// Benchmark append and read cycles on a bounded stream
func BenchmarkBoundedStreamAppendRead(b *testing.B) {
	s := BoundedStreamMake(200)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if s.MessageCount() == s.Capacity() {
			s.Reset()
		}
		s.Append("Bounded Message")
		s.ReadRange(0, 1)
	}
}

// Benchmark durable appends (batched flushes)
func BenchmarkDurableStreamAppend(b *testing.B) {
	d, err := DurableStreamMake(200, filepath.Join(b.TempDir(), "bench.log"))
	if err != nil {
		b.Fatal(err)
	}
	defer d.Close()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if d.MessageCount() == d.Capacity() {
			d.Reset()
		}
		d.Append("Durable Message")
	}
}

// Benchmark durable reads (resync on every read)
func BenchmarkDurableStreamRead(b *testing.B) {
	d, err := DurableStreamMake(200, filepath.Join(b.TempDir(), "bench.log"))
	if err != nil {
		b.Fatal(err)
	}
	defer d.Close()
	for i := 0; i < 90; i++ {
		d.Append("Durable Message " + strconv.Itoa(i))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if d.OperationCount() == d.MaxOperations() {
			d.Reset()
		}
		d.ReadRange(0, 10)
	}
}

// Benchmark key routing across all partitions
func BenchmarkPartitionedStreamAppend(b *testing.B) {
	p, err := PartitionedStreamMake(200, nil)
	if err != nil {
		b.Fatal(err)
	}
	keys := make([]string, 200)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if p.OperationCount() == p.MaxOperations() {
			p.Reset()
		}
		p.Append(keys[i%len(keys)], "Partitioned Message")
	}
}
