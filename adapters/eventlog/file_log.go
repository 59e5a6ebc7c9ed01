package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/metrics"
	"github.com/layer-3/planmint/ports"
)

// logFile is the subset of *os.File the log writes through
type logFile interface {
	io.Writer
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Close() error
}

// FileLog appends one JSON document per line and syncs after every entry
type FileLog struct {
	path string
	file logFile
	mu   sync.Mutex

	// torn is set when a failed write could not be rolled back
	torn     bool
	recorded map[recordKey]struct{}
}

// NewFileLog opens (or creates) the log at path
func NewFileLog(path string) (*FileLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	if err := terminateTornLine(path, f); err != nil {
		f.Close()
		return nil, err
	}

	l := &FileLog{path: path, file: f, recorded: make(map[recordKey]struct{})}
	entries, err := l.read("")
	if err != nil {
		f.Close()
		return nil, err
	}
	for _, e := range entries {
		if key, ok := keyOf(e); ok {
			l.recorded[key] = struct{}{}
		}
	}
	return l, nil
}

// terminateTornLine makes sure the next append starts on a fresh line.
func terminateTornLine(path string, f *os.File) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer r.Close()

	info, err := r.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat event log: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("failed to repair event log: %w", err)
	}
	return f.Sync()
}

var _ ports.EventLog = (*FileLog)(nil)

// Append writes entry as a single line and fsyncs before returning. A failed
// write is truncated away so it cannot corrupt the next entry.
func (l *FileLog) Append(ctx context.Context, entry core.EventLogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	key, keyed := keyOf(entry)
	if _, dup := l.recorded[key]; keyed && dup {
		return core.ErrEventRecorded
	}

	if l.torn {
		line = append([]byte{'\n'}, line...)
	}
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat event log: %w", err)
	}

	if _, err := l.file.Write(line); err != nil {
		l.rollback(info.Size())
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.rollback(info.Size())
		return fmt.Errorf("failed to sync event log: %w", err)
	}
	l.torn = false
	if keyed {
		l.recorded[key] = struct{}{}
	}
	return nil
}

// rollback cuts the log back to size. Must be called with mu held.
func (l *FileLog) rollback(size int64) {
	if err := l.file.Truncate(size); err != nil {
		l.torn = true
	}
}

// Recorded reports whether an entry of typ for txID is already in the log
func (l *FileLog) Recorded(ctx context.Context, typ core.EventType, txID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.recorded[recordKey{typ: typ, txID: txID}]
	return ok, nil
}

// Entries reads the whole log back. A torn line from a crash is skipped and
// counted.
func (l *FileLog) Entries(ctx context.Context, typ core.EventType) ([]core.EventLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(typ)
}

func (l *FileLog) read(typ core.EventType) ([]core.EventLogEntry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var out []core.EventLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry core.EventLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			metrics.EventLogCorruptLines.Inc()
			continue
		}
		if typ != "" && entry.Type != typ {
			continue
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return out, nil
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

type recordKey struct {
	typ  core.EventType
	txID string
}

// keyOf identifies an entry by its type and first transaction id
func keyOf(e core.EventLogEntry) (recordKey, bool) {
	if len(e.TransactionIDs) == 0 || e.TransactionIDs[0] == "" {
		return recordKey{}, false
	}
	return recordKey{typ: e.Type, txID: e.TransactionIDs[0]}, true
}
