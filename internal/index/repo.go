package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/evaluate"
)

// ProjectRow represents a row in the projects table.
type ProjectRow struct {
	Path        string
	Checksum    string
	Generation  uint64
	Warnings    []string
	EvaluatedAt time.Time
}

// PropertyHit is one property matching a search.
type PropertyHit struct {
	Project string `json:"project"`
	Name    string `json:"name"`
	Value   string `json:"value"`
}

// UpsertEvaluation replaces the stored evaluation of a project within a transaction.
func (db *DB) UpsertEvaluation(row ProjectRow, res *evaluate.Result) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if row.Warnings == nil {
		row.Warnings = res.Warnings
	}
	warningsJSON, _ := json.Marshal(nonNil(row.Warnings))
	if row.EvaluatedAt.IsZero() {
		row.EvaluatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO projects (path, checksum, generation, warnings, evaluated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum     = excluded.checksum,
			generation   = excluded.generation,
			warnings     = excluded.warnings,
			evaluated_at = excluded.evaluated_at
	`, row.Path, row.Checksum, row.Generation, string(warningsJSON), row.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert project: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM properties WHERE project = ?`, row.Path); err != nil {
		return fmt.Errorf("index: clear properties: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM items WHERE project = ?`, row.Path); err != nil {
		return fmt.Errorf("index: clear items: %w", err)
	}

	if len(res.Properties) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO properties (project, position, name, value) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare property insert: %w", err)
		}
		defer stmt.Close()
		for i, p := range res.Properties {
			if _, err := stmt.Exec(row.Path, i, p.Name, p.Value); err != nil {
				return fmt.Errorf("index: insert property %s: %w", p.Name, err)
			}
		}
	}

	if len(res.Items) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO items (project, position, type, include, metadata) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare item insert: %w", err)
		}
		defer stmt.Close()
		for i, it := range res.Items {
			meta, _ := json.Marshal(it.Metadata)
			if it.Metadata == nil {
				meta = []byte("{}")
			}
			if _, err := stmt.Exec(row.Path, i, it.Type, it.Include, string(meta)); err != nil {
				return fmt.Errorf("index: insert item: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteProject removes a project and its evaluation.
func (db *DB) DeleteProject(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM properties WHERE project = ?`, path)
	_, _ = tx.Exec(`DELETE FROM items WHERE project = ?`, path)
	_, _ = tx.Exec(`DELETE FROM projects WHERE path = ?`, path)

	return tx.Commit()
}

// GetProject returns the stored project row or apperr.ErrNotFound.
func (db *DB) GetProject(path string) (*ProjectRow, error) {
	var (
		row      ProjectRow
		warnings string
	)
	err := db.conn.QueryRow(`
		SELECT path, checksum, generation, warnings, evaluated_at
		FROM projects WHERE path = ?
	`, path).Scan(&row.Path, &row.Checksum, &row.Generation, &warnings, &row.EvaluatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get project: %w", err)
	}
	_ = json.Unmarshal([]byte(warnings), &row.Warnings)
	return &row, nil
}

// Evaluation rebuilds the stored evaluation of a project.
func (db *DB) Evaluation(path string) (*evaluate.Result, error) {
	row, err := db.GetProject(path)
	if err != nil {
		return nil, err
	}
	res := &evaluate.Result{
		Path:       path,
		Properties: []evaluate.Property{},
		Items:      []evaluate.Item{},
		Warnings:   row.Warnings,
	}

	rows, err := db.conn.Query(`SELECT name, value FROM properties WHERE project = ? ORDER BY position`, path)
	if err != nil {
		return nil, fmt.Errorf("index: properties: %w", err)
	}
	for rows.Next() {
		var p evaluate.Property
		if err := rows.Scan(&p.Name, &p.Value); err != nil {
			rows.Close()
			return nil, err
		}
		res.Properties = append(res.Properties, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.Query(`SELECT type, include, metadata FROM items WHERE project = ? ORDER BY position`, path)
	if err != nil {
		return nil, fmt.Errorf("index: items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it   evaluate.Item
			meta string
		)
		if err := rows.Scan(&it.Type, &it.Include, &meta); err != nil {
			return nil, err
		}
		if meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &it.Metadata)
		}
		res.Items = append(res.Items, it)
	}
	return res, rows.Err()
}

// SearchProperties returns properties whose name or value contains query.
func (db *DB) SearchProperties(query string, limit int) ([]PropertyHit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT project, name, value
		FROM properties
		WHERE name LIKE ? OR value LIKE ?
		ORDER BY project, position
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []PropertyHit
	for rows.Next() {
		var h PropertyHit
		if err := rows.Scan(&h.Project, &h.Name, &h.Value); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AllPaths returns every indexed project path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
