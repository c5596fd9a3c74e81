package converter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// live counts workspaces that have been acquired and not yet released.
var live atomic.Int64

// LiveWorkspaces returns the number of unreleased workspaces in this process.
func LiveWorkspaces() int64 {
	return live.Load()
}

// Workspace is a scoped working directory owned by one execute call.
// Release removes the directory and everything in it; it is idempotent.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a fresh directory under root (os.TempDir when empty).
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	dir := filepath.Join(root, "transmute-"+xid.New().String())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	live.Add(1)
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// WriteFile writes data under name and returns the full path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	path := w.Path(name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("workspace write %s: %w", name, err)
	}
	return path, nil
}

// ReadFile reads a file previously produced in the workspace.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("workspace read %s: %w", name, err)
	}
	return data, nil
}

// Release removes the workspace.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
		live.Add(-1)
	})
	return w.err
}
