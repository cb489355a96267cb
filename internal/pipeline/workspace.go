package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// workspace is the per-run temporary directory. Every temporary file of a
// run lives inside it.
type workspace struct {
	dir string
}

func newWorkspace(root, runID string) (*workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "run-"+runID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &workspace{dir: dir}, nil
}

// owns reports whether path is inside the workspace.
func (w *workspace) owns(path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(w.dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// remove deletes a workspace file. Paths outside the workspace, such as
// uploads, are left alone.
func (w *workspace) remove(path string) error {
	if !w.owns(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (w *workspace) cleanup() error {
	return os.RemoveAll(w.dir)
}
