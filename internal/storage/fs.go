package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/models"
)

const (
	tempPattern = ".raido-tmp-*"
	defaultMode = fs.FileMode(0o644)
)

// FS implements Provider on a directory of the local file system.
type FS struct {
	root string
}

// NewFS returns a provider rooted at dir, which must exist.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	switch {
	case err != nil:
		return nil, fmt.Errorf("storage: stat root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage: root %s is not a directory", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute workspace root.
func (f *FS) Root() string { return f.root }

// resolve maps a slash-separated workspace path onto the file system.
// Absolute paths and paths leaving the root are rejected.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" || rel == "." {
		return f.root, nil
	}
	native := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(native) || native == ".." || strings.HasPrefix(native, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: %q is outside the workspace: %w", rel, apperr.ErrInvalid)
	}
	return filepath.Join(f.root, native), nil
}

// List returns every project definition file below dir sorted by path.
// Hidden directories are not descended into.
func (f *FS) List(dir string) ([]models.ProjectFile, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}

	var out []models.ProjectFile
	walk := func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !document.IsProjectFile(d.Name()) {
			return nil
		}
		pf, err := f.describe(p, d)
		if err != nil {
			return err
		}
		out = append(out, pf)
		return nil
	}
	if err := filepath.WalkDir(base, walk); err != nil {
		return nil, fmt.Errorf("storage: list %q: %w", dir, err)
	}

	slices.SortFunc(out, func(a, b models.ProjectFile) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (f *FS) describe(abs string, d fs.DirEntry) (models.ProjectFile, error) {
	info, err := d.Info()
	if err != nil {
		return models.ProjectFile{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return models.ProjectFile{}, err
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return models.ProjectFile{}, err
	}
	return models.ProjectFile{
		Path:      filepath.ToSlash(rel),
		Checksum:  checksum.Sum(data),
		Size:      info.Size(),
		UpdatedAt: info.ModTime(),
	}, nil
}

// Read returns the bytes of the file at path. A missing file matches both
// apperr.ErrNotFound and fs.ErrNotExist.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w: %w", path, apperr.ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the file at path with content. Readers of the path see
// either the old or the new bytes; an existing file keeps its mode.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: write to workspace root: %w", apperr.ErrInvalid)
	}

	mode := defaultMode
	if info, err := os.Stat(abs); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for %s: %w", path, err)
	}
	if err := replaceFile(abs, content, mode); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return nil
}

// replaceFile writes content to a sibling temp file, syncs it and renames
// it over abs.
func replaceFile(abs string, content []byte, mode fs.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(abs), tempPattern)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), abs)
}
