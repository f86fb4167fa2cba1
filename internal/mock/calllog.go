package mock

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const callLogName = "call_log.jsonl"

// CallLogEntry is one immutable record of a capability call. Entries are
// appended regardless of outcome so error-handling commands are scored too.
type CallLogEntry struct {
	Seq          int               `json:"seq"`
	Timestamp    time.Time         `json:"timestamp"`
	Method       string            `json:"method"`
	Args         map[string]string `json:"args"`
	ResponseFile string            `json:"response_file,omitempty"`
	Error        string            `json:"error,omitempty"`
	Status       int               `json:"status"`
	DurationMS   int64             `json:"duration_ms"`
}

// IsError reports whether this call failed.
func (e *CallLogEntry) IsError() bool { return e.Error != "" }

// CallLog is the append-only JSONL log for one scenario run. It is the only
// shared mutable resource in a run; a mutex enforces single-writer discipline.
type CallLog struct {
	mu   sync.Mutex
	file *os.File
	seq  int
}

// OpenCallLog opens (creating if needed) the call log in append mode for the
// lifetime of the scenario run.
func OpenCallLog(scenarioDir string) (*CallLog, error) {
	path := filepath.Join(scenarioDir, callLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open call log %s", path)
	}
	return &CallLog{file: f}, nil
}

// Append writes one entry, assigning it the next sequence index.
func (l *CallLog) Append(entry CallLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Seq = l.seq
	l.seq++

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal call log entry")
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write call log entry")
	}
	return nil
}

// Close releases the underlying file.
func (l *CallLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ResetCallLog truncates the scenario's call log before a fresh run.
func ResetCallLog(scenarioDir string) error {
	path := filepath.Join(scenarioDir, callLogName)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return errors.Wrapf(err, "failed to reset call log %s", path)
	}
	return nil
}

// ReadCallLog loads all entries from a scenario's call log. It is called only
// after the session has fully terminated, so no writer is racing it.
func ReadCallLog(scenarioDir string) ([]CallLogEntry, error) {
	path := filepath.Join(scenarioDir, callLogName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open call log %s", path)
	}
	defer f.Close()

	var entries []CallLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry CallLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errors.Wrapf(err, "malformed call log line in %s", path)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read call log %s", path)
	}
	return entries, nil
}
