package msgstream

import (
	"slices"
	"sync"
)

// RamJournal (fast but volatile)
type RamJournal struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func RamJournalMake(lines ...string) *RamJournal {
	return &RamJournal{lines: slices.Clone(lines)}
}

func (j *RamJournal) Load() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}
	return slices.Clone(j.lines), nil
}

func (j *RamJournal) Append(lines []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	j.lines = append(j.lines, lines...)
	return nil
}

func (j *RamJournal) Rewrite(lines []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	j.lines = slices.Clone(lines)
	return nil
}

func (j *RamJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}
