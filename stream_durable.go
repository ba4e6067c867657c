package msgstream

import (
	"errors"
	"slices"

	"go.uber.org/zap"
)

// DurableStream is a BoundedStream mirrored to a Journal.
//
// Appends are buffered and written to the journal in batches of
// WriteThreshold messages. Every read first resynchronizes memory from the
// journal, so lines added by another writer become visible. The messages
// replayed by the latest resync form the initial state that Reset restores.
//
// A DurableStream owns its journal and must not be shared; use Snapshot for
// an in-memory copy.
type DurableStream struct {
	*BoundedStream

	journal       Journal
	path          string
	initialState  []string
	appendCounter int
	closed        bool
}

// DurableStreamMake opens (or creates) the line file at path and replays it.
func DurableStreamMake(capacity int, path string, options ...Option) (*DurableStream, error) {
	if path == "" {
		return nil, newError("open durable stream", KindInvalidPath, "empty path")
	}
	j, err := FileJournalMake(path)
	if err != nil {
		return nil, err
	}
	d, err := newDurableStream(capacity, j, applyOptions(options...))
	if err != nil {
		return nil, err
	}
	d.path = path
	return d, nil
}

// DurableStreamOnJournal builds a durable stream over any journal and
// takes ownership of it.
func DurableStreamOnJournal(capacity int, journal Journal, options ...Option) (*DurableStream, error) {
	if journal == nil {
		return nil, newError("open durable stream", KindInvalidArgument, "nil journal")
	}
	return newDurableStream(capacity, journal, applyOptions(options...))
}

func newDurableStream(capacity int, journal Journal, opts Options) (*DurableStream, error) {
	d := &DurableStream{
		BoundedStream: newBoundedStream(capacity, opts, streamDurable),
		journal:       journal,
	}
	if err := d.resync("open durable stream"); err != nil {
		journal.Close()
		return nil, err
	}
	logger.Debug("Durable stream opened",
		zap.Int("capacity", d.capacity),
		zap.Int("replayed", len(d.initialState)),
	)
	return d, nil
}

// Path returns the backing file path, or "" for a non-file journal.
func (d *DurableStream) Path() string { return d.path }

// InitialState returns the messages Reset restores.
func (d *DurableStream) InitialState() []string { return slices.Clone(d.initialState) }

// Pending returns the number of appended messages not yet written to the journal.
func (d *DurableStream) Pending() int { return d.appendCounter }

// Snapshot returns an in-memory copy; the journal is not shared.
func (d *DurableStream) Snapshot() *BoundedStream { return d.BoundedStream.Clone() }

// resync rebuilds memory from the journal followed by the pending tail.
// Invalid lines are skipped; lines beyond the room left by pending messages
// are dropped. The governor is not charged.
func (d *DurableStream) resync(op string) error {
	lines, err := d.journal.Load()
	if err != nil {
		logger.Error("Journal load failed", zap.String("path", d.path), zap.Error(err))
		return wrapIO(op, err)
	}

	pending := slices.Clone(d.messages[len(d.messages)-d.appendCounter:])
	room := d.capacity - len(pending)
	restored := make([]string, 0, min(len(lines), room))
	skipped, dropped := 0, 0
	for _, l := range lines {
		switch {
		case !d.validMessage(l):
			skipped++
		case len(restored) >= room:
			dropped++
		default:
			restored = append(restored, l)
		}
	}
	if skipped > 0 || dropped > 0 {
		logger.Warn("Journal lines not replayed",
			zap.String("path", d.path),
			zap.Int("invalid", skipped),
			zap.Int("over_capacity", dropped),
		)
	}

	d.initialState = restored
	d.messages = append(append(d.messages[:0], restored...), pending...)
	resyncs.Inc()
	return nil
}

// Append validates message, stores it and flushes the pending batch once it
// reaches WriteThreshold. When the flush fails the message stays in memory
// and remains pending.
func (d *DurableStream) Append(message string) error {
	if d.closed {
		return ErrClosed
	}
	if err := d.checkAppend("append", message); err != nil {
		return reject(streamDurable, err)
	}
	d.push(message)
	d.appendCounter++

	if d.appendCounter >= d.opts.WriteThreshold {
		return d.flush("append")
	}
	return nil
}

// Flush writes pending messages to the journal regardless of the threshold.
func (d *DurableStream) Flush() error {
	if d.closed {
		return ErrClosed
	}
	return d.flush("flush")
}

func (d *DurableStream) flush(op string) error {
	if d.appendCounter == 0 {
		return nil
	}
	batch := d.messages[len(d.messages)-d.appendCounter:]
	if err := d.journal.Append(batch); err != nil {
		return reject(streamDurable, wrapIO(op, err))
	}
	flushes.Inc()
	flushedMessages.Add(float64(len(batch)))
	logger.Debug("Batch flushed", zap.String("path", d.path), zap.Int("count", len(batch)))
	d.appendCounter = 0
	return nil
}

// ReadRange resynchronizes from the journal and then reads [start, end).
func (d *DurableStream) ReadRange(start, end int) ([]string, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if err := d.resync("read"); err != nil {
		return nil, reject(streamDurable, err)
	}
	return d.BoundedStream.ReadRange(start, end)
}

// Reset restores memory to the initial state, then truncates the journal
// and rewrites it with the same messages.
func (d *DurableStream) Reset() error {
	if d.closed {
		return ErrClosed
	}
	d.clear()
	d.messages = append(d.messages, d.initialState...)
	d.appendCounter = 0

	if err := d.journal.Rewrite(d.initialState); err != nil {
		logger.Error("Journal rewrite failed", zap.String("path", d.path), zap.Error(err))
		return reject(streamDurable, wrapIO("reset", err))
	}
	logger.Debug("Durable stream reset", zap.String("path", d.path), zap.Int("restored", len(d.initialState)))
	return nil
}

// MergeInto merges other into memory and writes the merged messages, along
// with anything pending, to the journal.
func (d *DurableStream) MergeInto(other Stream) error {
	if d.closed {
		return ErrClosed
	}
	n := other.MessageCount()
	if err := d.BoundedStream.MergeInto(other); err != nil {
		return err
	}
	d.appendCounter += n
	return d.flush("merge")
}

// Close flushes pending messages and releases the journal.
func (d *DurableStream) Close() error {
	if d.closed {
		return nil
	}
	flushErr := d.flush("close")
	d.closed = true
	closeErr := d.journal.Close()
	if closeErr != nil {
		closeErr = wrapIO("close", closeErr)
	}
	return errors.Join(flushErr, closeErr)
}
