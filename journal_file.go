package msgstream

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileJournal stores one message per newline-terminated UTF-8 line. The
// append handle stays open for the lifetime of the journal.
type FileJournal struct {
	mu   sync.Mutex
	path string
	out  *os.File
}

// FileJournalMake opens path for appending, creating it when missing.
func FileJournalMake(path string) (*FileJournal, error) {
	if path == "" {
		return nil, newError("open journal", KindInvalidPath, "empty path")
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Error("Failed to open journal for writing", zap.String("path", path), zap.Error(err))
		return nil, wrapIO("open journal", err)
	}
	return &FileJournal{path: path, out: out}, nil
}

func (j *FileJournal) Path() string { return j.path }

// Load reads the file from the start. A missing file reads as empty.
func (j *FileJournal) Load() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.out == nil {
		return nil, ErrClosed
	}

	in, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapIO("load journal", err)
	}
	defer in.Close()

	// bufio.Reader rather than Scanner: over-long lines must be returned, not fail the read.
	var lines []string
	r := bufio.NewReader(in)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			lines = append(lines, strings.TrimSuffix(line, "\r"))
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, wrapIO("load journal", err)
		}
	}
}

func (j *FileJournal) Append(lines []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.out == nil {
		return ErrClosed
	}
	return j.write("append journal", lines)
}

// Rewrite truncates the file and writes lines. Writes after the truncate
// land at offset zero because the handle is in append mode.
func (j *FileJournal) Rewrite(lines []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.out == nil {
		return ErrClosed
	}
	if err := j.out.Truncate(0); err != nil {
		return wrapIO("rewrite journal", err)
	}
	return j.write("rewrite journal", lines)
}

func (j *FileJournal) write(op string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if _, err := j.out.WriteString(b.String()); err != nil {
		logger.Error("Journal write failed", zap.String("path", j.path), zap.Error(err))
		return wrapIO(op, err)
	}
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.out == nil {
		return nil
	}
	err := j.out.Close()
	j.out = nil
	if err != nil {
		return wrapIO("close journal", err)
	}
	return nil
}
