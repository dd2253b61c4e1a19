package trace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Writer persists trace files under a results directory. Directory
// creation is idempotent; existing files at the same path are
// overwritten.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the results directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores content under name in the results directory and returns
// the full path written.
func (w *Writer) Write(name, content string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write trace: %w", err)
	}
	return path, nil
}
