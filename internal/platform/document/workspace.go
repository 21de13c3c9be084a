package document

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is a private scratch directory for one report. Close removes it
// and everything written into it.
type Workspace struct {
	dir string
}

// NewWorkspace creates the directory under root, or the OS temp dir when
// root is empty.
func NewWorkspace(root string) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, "clinic-report-")
	if err != nil {
		return nil, fmt.Errorf("create report workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(name), err)
	}
	return p, nil
}

// Close is safe to call more than once.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}
