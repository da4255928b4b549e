package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// dirPrefix marks directories owned by a user session
const dirPrefix = "user_"

// ErrOutsideRoot is returned when a path does not belong to the data directory
var ErrOutsideRoot = errors.New("path is outside the data directory")

// Workspace manages per-user working directories under a data root
type Workspace struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// NewWorkspace creates a Workspace rooted at root
func NewWorkspace(fs afero.Fs, root string) *Workspace {
	return &Workspace{fs: fs, root: filepath.Clean(root), now: time.Now}
}

// Fs exposes the underlying filesystem for readers of stored files
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Root returns the data directory
func (w *Workspace) Root() string {
	return w.root
}

// Init creates the data directory if it does not exist
func (w *Workspace) Init() error {
	if err := w.fs.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// CreateUserDir creates a fresh working directory for userID
func (w *Workspace) CreateUserDir(userID int64) (string, error) {
	dir := filepath.Join(w.root, fmt.Sprintf("%s%d_%d", dirPrefix, userID, w.now().Unix()))
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}
	return dir, nil
}

// Save streams r into dir/name. Only the base name of name is used.
func (w *Workspace) Save(dir, name string, r io.Reader) (string, error) {
	if err := w.contains(dir); err != nil {
		return "", err
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	path := filepath.Join(dir, base)
	f, err := w.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", base, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = w.fs.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", base, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", base, err)
	}
	return path, nil
}

// Remove deletes a single stored file; a missing file is not an error
func (w *Workspace) Remove(path string) error {
	if err := w.contains(path); err != nil {
		return err
	}
	if err := w.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveDir deletes every file in dir and then dir itself.
// It keeps going after individual failures and returns them joined.
// A missing directory is not an error.
func (w *Workspace) RemoveDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := w.contains(dir); err != nil {
		return err
	}

	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var errs []error
	for _, e := range entries {
		if err := w.fs.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.fs.Remove(dir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// UserDirs lists session directories whose modification time is before cutoff.
// A zero cutoff lists all of them.
func (w *Workspace) UserDirs(cutoff time.Time) ([]string, error) {
	entries, err := afero.ReadDir(w.fs, w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		if !cutoff.IsZero() && !e.ModTime().Before(cutoff) {
			continue
		}
		dirs = append(dirs, filepath.Join(w.root, e.Name()))
	}
	return dirs, nil
}

// contains rejects paths that escape the data directory
func (w *Workspace) contains(path string) error {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return nil
}
