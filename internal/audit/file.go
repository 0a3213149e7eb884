package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jnwerner/vouch/internal/core"
)

var _ core.Auditor = (*File)(nil)

// File is an auditor that appends entries to a file as JSON lines.
type File struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	return &File{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

func (f *File) Log(entry core.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.encoder.Encode(entry); err != nil {
		return fmt.Errorf("writing audit log entry: %w", err)
	}
	return nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// ReadFile loads a trail written by File back into an InMemory auditor,
// oldest entry first, so it can be queried with Recent and Find.
func ReadFile(path string) (*InMemory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	defer f.Close()

	mem := NewInMemory()
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var entry core.AuditEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("parsing audit log entry on line %d: %w", line, err)
		}
		_ = mem.Log(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log file: %w", err)
	}
	return mem, nil
}
