package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer persists receipts. One writer serves a whole run, so watch mode
// appends one receipt per re-evaluation.
type Writer interface {
	Write(r Receipt) error
	Close() error
}

// Mode selects how receipts are laid out in the file.
type Mode string

const (
	// ModeOverwrite keeps only the latest receipt as a single JSON object.
	ModeOverwrite Mode = "overwrite"
	// ModeAppend writes JSONL, one receipt per line.
	ModeAppend Mode = "append"
)

// ParseMode accepts "overwrite", "append" or empty (overwrite).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeOverwrite:
		return ModeOverwrite, nil
	case ModeAppend:
		return ModeAppend, nil
	}
	return "", fmt.Errorf("invalid receipt mode %q (use overwrite or append)", s)
}

type fileWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	mode Mode
}

// NewWriter creates parent directories as needed.
func NewWriter(path string, mode string) (Writer, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for receipt: %w", err)
		}
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if m == ModeAppend {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipt file: %w", err)
	}
	return &fileWriter{path: path, file: f, mode: m}, nil
}

func (w *fileWriter) Write(r Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mode == ModeOverwrite {
		// watch mode writes repeatedly; keep the file a single object
		if err := w.file.Truncate(0); err != nil {
			return fmt.Errorf("failed to truncate receipt %s: %w", w.path, err)
		}
		if _, err := w.file.Seek(0, 0); err != nil {
			return fmt.Errorf("failed to rewind receipt %s: %w", w.path, err)
		}
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to write receipt %s: %w", w.path, err)
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

type writerKey struct{}

// WithWriter enables receipts for everything run under ctx.
func WithWriter(ctx context.Context, w Writer) context.Context {
	return context.WithValue(ctx, writerKey{}, w)
}

// From returns nil when receipts are disabled.
func From(ctx context.Context) Writer {
	w, _ := ctx.Value(writerKey{}).(Writer)
	return w
}
