package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/groupmsg/internal/domain/delivery"
)

// File is a JSONL ledger: one Attempt per line, fsynced after every append.
// The file is read once at open; lookups are served from memory after that.
type File struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	lock    *fileLock
	entries []delivery.Attempt
	sent    map[string]bool
}

// OpenFile opens or creates the ledger at path and takes an exclusive lock
// on path+".lock". A final line cut short by a crash is dropped.
func OpenFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	lock, err := acquireLock(path + ".lock")
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	l := &File{path: path, file: f, lock: lock, sent: map[string]bool{}}
	good, err := l.load(f)
	if err != nil {
		f.Close()
		lock.release()
		return nil, err
	}
	if st, err := f.Stat(); err == nil && st.Size() > good {
		logger.Warn("ledger: dropping truncated final entry", "path", path, "bytes", st.Size()-good)
		if err := f.Truncate(good); err != nil {
			f.Close()
			lock.release()
			return nil, fmt.Errorf("truncate ledger: %w", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		lock.release()
		return nil, fmt.Errorf("seek ledger: %w", err)
	}
	return l, nil
}

// load reads every complete entry and returns the offset just past the last one.
func (l *File) load(r io.Reader) (int64, error) {
	br := bufio.NewReader(r)
	var offset int64
	lineNo := 0
	for {
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			// anything without a trailing newline is an interrupted write
			return offset, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read ledger: %w", err)
		}
		lineNo++
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var a delivery.Attempt
			if err := json.Unmarshal(trimmed, &a); err != nil {
				if _, peekErr := br.Peek(1); peekErr == io.EOF {
					return offset, nil
				}
				return 0, fmt.Errorf("ledger %s line %d: %w", l.path, lineNo, err)
			}
			l.index(a)
		}
		offset += int64(len(line))
	}
}

func (l *File) index(a delivery.Attempt) {
	l.entries = append(l.entries, a)
	if a.Outcome == delivery.OutcomeSent {
		l.sent[a.ContactKey] = true
	}
}

func (l *File) Append(_ context.Context, a delivery.Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("ledger %s is closed", l.path)
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	l.index(a)
	return nil
}

func (l *File) HasSent(_ context.Context, phoneE164 string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent[phoneE164], nil
}

func (l *File) List(_ context.Context, phoneE164 string) ([]delivery.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return filter(l.entries, phoneE164), nil
}

func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if lerr := l.lock.release(); err == nil {
		err = lerr
	}
	return err
}
