package index

import "github.com/starford/raido/internal/evaluate"

// ProjectIndex defines the interface for evaluation persistence.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ProjectIndex interface {
	UpsertEvaluation(row ProjectRow, res *evaluate.Result) error
	DeleteProject(path string) error
	GetProject(path string) (*ProjectRow, error)
	Evaluation(path string) (*evaluate.Result, error)
	SearchProperties(query string, limit int) ([]PropertyHit, error)
	AllPaths() (map[string]struct{}, error)
	Close() error
}

// Verify *DB satisfies ProjectIndex at compile time.
var _ ProjectIndex = (*DB)(nil)
