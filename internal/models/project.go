// Package models defines the shared value types for raido.
package models

import "time"

// ProjectFile describes a project definition file found in the workspace.
type ProjectFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
