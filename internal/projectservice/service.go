// Package projectservice is the application layer shared by the HTTP API
// and the MCP server.
package projectservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/evaluate"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/projectstore"
	"github.com/starford/raido/internal/reload"
)

// ProjectSummary is a lightweight item in a list response.
type ProjectSummary struct {
	Path        string     `json:"path"`
	Dirty       bool       `json:"dirty"`
	Checksum    string     `json:"checksum,omitempty"`
	Generation  uint64     `json:"generation,omitempty"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
}

// ProjectDetail is the full representation of an open project.
type ProjectDetail struct {
	Path     string         `json:"path"`
	Format   string         `json:"format"`
	Dirty    bool           `json:"dirty"`
	Checksum string         `json:"checksum"`
	Content  string         `json:"content"`
	Tree     *document.Node `json:"tree"`
}

// Publisher schedules a publication of the project tree.
type Publisher interface {
	PublishLatest(blockUntilDone bool)
}

// Dispatcher routes reload requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, path string) (reload.Outcome, error)
}

// Service coordinates the project store, the index and the reload manager.
type Service struct {
	store *projectstore.Store
	db    index.ProjectIndex
	pub   Publisher
	mgr   Dispatcher
}

// NewService creates a new project service.
func NewService(store *projectstore.Store, db index.ProjectIndex, pub Publisher, mgr Dispatcher) *Service {
	return &Service{store: store, db: db, pub: pub, mgr: mgr}
}

// List returns every open project with its last published state.
func (s *Service) List(ctx context.Context) ([]ProjectSummary, error) {
	paths := s.store.Paths()
	out := make([]ProjectSummary, 0, len(paths))
	for _, p := range paths {
		item := ProjectSummary{Path: p}
		err := s.store.Read(ctx, p, func(doc *document.Document) error {
			item.Dirty = doc.IsDirty()
			return nil
		})
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		row, err := s.db.GetProject(p)
		switch {
		case err == nil:
			item.Checksum = row.Checksum
			item.Generation = row.Generation
			at := row.EvaluatedAt
			item.EvaluatedAt = &at
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Tree returns the live content of the project at path.
func (s *Service) Tree(ctx context.Context, path string) (*ProjectDetail, error) {
	var (
		snap   *document.Node
		format document.Format
		dirty  bool
	)
	err := s.store.Read(ctx, path, func(doc *document.Document) error {
		snap = doc.Snapshot()
		format = doc.Format()
		dirty = doc.IsDirty()
		return nil
	})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := document.Encode(&buf, format, snap); err != nil {
		return nil, fmt.Errorf("projectservice: encode %s: %w", path, err)
	}
	return &ProjectDetail{
		Path:     path,
		Format:   format.String(),
		Dirty:    dirty,
		Checksum: checksum.Sum(buf.Bytes()),
		Content:  buf.String(),
		Tree:     snap,
	}, nil
}

func contentChecksum(format document.Format, root *document.Node) (string, error) {
	var buf bytes.Buffer
	if err := document.Encode(&buf, format, root); err != nil {
		return "", fmt.Errorf("projectservice: encode: %w", err)
	}
	return checksum.Sum(buf.Bytes()), nil
}

// Evaluation returns the last published evaluation of the project at path.
func (s *Service) Evaluation(_ context.Context, path string) (*evaluate.Result, error) {
	return s.db.Evaluation(path)
}

// SearchProperties finds published properties by name or value.
func (s *Service) SearchProperties(_ context.Context, query string, limit int) ([]index.PropertyHit, error) {
	return s.db.SearchProperties(query, limit)
}

// SetProperty edits a property in the live document, leaving it dirty, and
// schedules a publication. A non-empty ifMatch must equal the checksum of
// the current live content, otherwise apperr.ErrConflict is returned.
func (s *Service) SetProperty(ctx context.Context, path, name, value, ifMatch string) (*ProjectDetail, error) {
	err := s.store.Edit(ctx, path, func(doc *document.Document) error {
		if ifMatch != "" {
			sum, err := contentChecksum(doc.Format(), doc.Snapshot())
			if err != nil {
				return err
			}
			if sum != ifMatch {
				return apperr.ErrConflict
			}
		}
		return doc.SetProperty(name, value)
	})
	if err != nil {
		return nil, err
	}
	s.pub.PublishLatest(false)
	return s.Tree(ctx, path)
}

// Save writes the live document at path back to disk.
func (s *Service) Save(ctx context.Context, path string) (*ProjectDetail, error) {
	if err := s.store.Save(ctx, path); err != nil {
		return nil, err
	}
	s.pub.PublishLatest(false)
	return s.Tree(ctx, path)
}

// Reload replaces the live document at path with the file on disk.
func (s *Service) Reload(ctx context.Context, path string) (reload.Outcome, error) {
	return s.mgr.Dispatch(ctx, path)
}
