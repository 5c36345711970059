package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer persists receipts.
type Writer interface {
	Write(r Receipt) error
	Close() error
}

// Mode selects how receipts land in the file.
type Mode string

const (
	// ModeOverwrite truncates the file and writes a single JSON object.
	ModeOverwrite Mode = "overwrite"
	// ModeAppend appends one JSON object per line.
	ModeAppend Mode = "append"
)

// ParseMode accepts "", "overwrite" or "append".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeOverwrite:
		return ModeOverwrite, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", fmt.Errorf("receipt mode must be 'overwrite' or 'append', got %q", s)
	}
}

type fileWriter struct {
	mu   sync.Mutex
	file *os.File
	mode Mode
}

// NewWriter opens path for receipts, creating parent directories.
func NewWriter(path string, mode Mode) (Writer, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create receipt directory: %w", err)
		}
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == ModeAppend {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipt file: %w", err)
	}
	return &fileWriter{file: f, mode: mode}, nil
}

func (w *fileWriter) Write(r Receipt) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if w.mode == ModeAppend {
		data, err = json.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	return nil
}

func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
