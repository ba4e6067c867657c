package msgstream

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerJournal implements a durable journal using BadgerDB. Each line is a
// key "line:<name>:<seq>" with a zero-padded sequence so prefix iteration
// returns lines in append order. Several journals can share one database
// under different names; a name may not contain ':'.
type BadgerJournal struct {
	db     *badger.DB
	mu     sync.Mutex
	name   string
	prefix []byte
	next   uint64
	ownsDB bool
}

// BadgerJournalMake opens a BadgerDB at path with sync writes enabled and
// binds a journal called name to it. Close also closes the database.
func BadgerJournalMake(path, name string) (*BadgerJournal, error) {
	if path == "" {
		return nil, newError("open journal", KindInvalidPath, "empty path")
	}
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).          // Ensures writes are flushed to disk immediately
		WithLoggingLevel(badger.ERROR) // Reduce log noise

	db, err := badger.Open(opts)
	if err != nil {
		logger.Error("Failed to open BadgerDB", zap.String("path", path), zap.Error(err))
		return nil, wrapIO("open journal", err)
	}
	j, err := BadgerJournalOnDB(db, name)
	if err != nil {
		db.Close()
		return nil, err
	}
	j.ownsDB = true
	return j, nil
}

// BadgerJournalOnDB binds a journal called name to an already open database.
// The caller keeps ownership of db.
func BadgerJournalOnDB(db *badger.DB, name string) (*BadgerJournal, error) {
	if name == "" {
		return nil, newError("open journal", KindInvalidPath, "empty journal name")
	}
	if strings.Contains(name, ":") {
		return nil, newError("open journal", KindInvalidArgument, "journal name %q contains ':'", name)
	}
	j := &BadgerJournal{db: db, name: name, prefix: []byte(fmt.Sprintf("line:%s:", name))}
	if err := j.recoverSequence(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *BadgerJournal) key(seq uint64) []byte {
	return []byte(fmt.Sprintf("line:%s:%020d", j.name, seq))
}

// recoverSequence restores the next sequence number from the last stored line.
func (j *BadgerJournal) recoverSequence() error {
	err := j.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = false
		itOpts.Prefix = j.prefix
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(j.prefix); it.Next() {
			seq, err := strconv.ParseUint(string(it.Item().Key()[len(j.prefix):]), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt journal key %q: %w", it.Item().Key(), err)
			}
			j.next = seq + 1
		}
		return nil
	})
	if err != nil {
		return wrapIO("recover journal", err)
	}
	logger.Debug("Recovered journal from BadgerDB", zap.String("journal", j.name), zap.Uint64("next", j.next))
	return nil
}

// Load returns all lines of the journal in sequence order.
func (j *BadgerJournal) Load() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrClosed
	}

	var lines []string
	err := j.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = j.prefix
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(j.prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			lines = append(lines, string(val))
		}
		return nil
	})
	if err != nil {
		return nil, wrapIO("load journal", err)
	}
	return lines, nil
}

// Append persists lines in one transaction.
func (j *BadgerJournal) Append(lines []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return ErrClosed
	}

	next := j.next
	err := j.db.Update(func(txn *badger.Txn) error {
		for _, l := range lines {
			if err := txn.Set(j.key(next), []byte(l)); err != nil {
				return err
			}
			next++
		}
		return nil
	})
	if err != nil {
		logger.Error("Journal append failed", zap.String("journal", j.name), zap.Error(err))
		return wrapIO("append journal", err)
	}
	j.next = next
	logger.Debug("Lines saved to BadgerDB", zap.String("journal", j.name), zap.Int("count", len(lines)))
	return nil
}

// Rewrite deletes every line of the journal and stores lines from sequence zero.
func (j *BadgerJournal) Rewrite(lines []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return ErrClosed
	}

	err := j.db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = false
		itOpts.Prefix = j.prefix
		it := txn.NewIterator(itOpts)
		for it.Rewind(); it.ValidForPrefix(j.prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for i, l := range lines {
			if err := txn.Set(j.key(uint64(i)), []byte(l)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Journal rewrite failed", zap.String("journal", j.name), zap.Error(err))
		return wrapIO("rewrite journal", err)
	}
	j.next = uint64(len(lines))
	return nil
}

// Close releases the database when the journal opened it.
func (j *BadgerJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	var err error
	if j.ownsDB {
		logger.Debug("Closing BadgerDB", zap.String("journal", j.name))
		err = j.db.Close()
	}
	j.db = nil
	if err != nil {
		return wrapIO("close journal", err)
	}
	return nil
}
