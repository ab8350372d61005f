package extract

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProgressWriter persists parsed batches append-only. The file is opened
// per append so a crashed run never holds parsed text only in memory.
type ProgressWriter struct {
	path string
}

func NewProgressWriter(path string) (*ProgressWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("progress path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create progress dir: %w", err)
		}
	}
	return &ProgressWriter{path: path}, nil
}

func (w *ProgressWriter) Append(markdown string) error {
	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(markdown); err != nil {
		return err
	}
	return file.Sync()
}

func (w *ProgressWriter) Path() string {
	return w.path
}
