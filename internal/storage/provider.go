// Package storage gives the rest of raido byte-level access to the
// workspace directory. Paths are always slash-separated and relative to
// the workspace root.
package storage

import "github.com/starford/raido/internal/models"

// Provider reads and writes project definition files.
type Provider interface {
	Root() string
	List(dir string) ([]models.ProjectFile, error)
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
}

var _ Provider = (*FS)(nil)
