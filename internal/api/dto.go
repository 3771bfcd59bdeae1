package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/evaluate"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/projectservice"
)

// SetPropertyRequest is the request body for editing a property.
type SetPropertyRequest struct {
	Name  string `json:"name" example:"Version" validate:"required"`
	Value string `json:"value" example:"2.0"`
}

// Validate validates the request.
func (r SetPropertyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.Value, validation.Length(0, 64<<10)),
	)
}

// ProjectSummary is a lightweight item in a list response (aliased from the domain layer).
type ProjectSummary = projectservice.ProjectSummary

// ProjectDetail is the full project response type (aliased from the domain layer).
type ProjectDetail = projectservice.ProjectDetail

// Evaluation is the evaluated view of a project.
type Evaluation = evaluate.Result

// ProjectListResponse wraps project listings.
type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects" validate:"required"`
	Total    int              `json:"total" example:"3" validate:"required"`
}

// ReloadResponse reports the outcome of a reload attempt.
type ReloadResponse struct {
	Path    string `json:"path" example:"app/app.proj" validate:"required"`
	Outcome string `json:"outcome" example:"completed" enums:"completed,failed_project_dirty,failed" validate:"required"`
}

// SearchResponse wraps property search hits.
type SearchResponse struct {
	Results []index.PropertyHit `json:"results" validate:"required"`
}
