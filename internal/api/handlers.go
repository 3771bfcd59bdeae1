package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/projectservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *projectservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *projectservice.Service) *Handler {
	return &Handler{svc: svc}
}

// projectPath extracts the project path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. app%2Fapp.proj).
func projectPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListProjects handles GET /api/projects.
//
//	@Summary		List open projects
//	@Tags			projects
//	@Produce		json
//	@Success		200	{object}	ProjectListResponse
//	@Security		BearerAuth
//	@Router			/projects [get]
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list projects", "", err)
		return
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{Projects: items, Total: len(items)})
}

// GetProject handles GET /api/projects/*.
//
//	@Summary		Get the live content of a project
//	@Tags			projects
//	@Produce		json
//	@Param			path	path		string	true	"Project path"
//	@Success		200		{object}	ProjectDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects/{path} [get]
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	path := projectPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	d, err := h.svc.Tree(r.Context(), path)
	if err != nil {
		writeError(w, "get project", path, err)
		return
	}
	w.Header().Set("ETag", `"`+d.Checksum+`"`)
	writeJSON(w, http.StatusOK, d)
}

// GetEvaluation handles GET /api/evaluations/*.
//
//	@Summary		Get the last published evaluation of a project
//	@Tags			evaluations
//	@Produce		json
//	@Param			path	path		string	true	"Project path"
//	@Success		200		{object}	Evaluation
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/evaluations/{path} [get]
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	path := projectPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.Evaluation(r.Context(), path)
	if err != nil {
		writeError(w, "get evaluation", path, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetProperty handles PUT /api/properties/*.
//
//	@Summary		Set a property in the live document without saving it
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string				true	"Project path"
//	@Param			If-Match	header		string				false	"Checksum of the live content for optimistic concurrency"
//	@Param			body		body		SetPropertyRequest	true	"Property to set"
//	@Success		200			{object}	ProjectDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/properties/{path} [put]
func (h *Handler) SetProperty(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	path := projectPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req SetPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	d, err := h.svc.SetProperty(r.Context(), path, req.Name, req.Value, ifMatch)
	if err != nil {
		writeError(w, "set property", path, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SaveProject handles POST /api/saves/*.
//
//	@Summary		Write the live document back to disk
//	@Tags			projects
//	@Produce		json
//	@Param			path	path		string	true	"Project path"
//	@Success		200		{object}	ProjectDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/saves/{path} [post]
func (h *Handler) SaveProject(w http.ResponseWriter, r *http.Request) {
	path := projectPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	d, err := h.svc.Save(r.Context(), path)
	if err != nil {
		writeError(w, "save project", path, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ReloadProject handles POST /api/reloads/*.
//
//	@Summary		Reload a project from disk in place
//	@Tags			projects
//	@Produce		json
//	@Param			path	path		string	true	"Project path"
//	@Success		200		{object}	ReloadResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reloads/{path} [post]
func (h *Handler) ReloadProject(w http.ResponseWriter, r *http.Request) {
	path := projectPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	outcome, err := h.svc.Reload(r.Context(), path)
	if err != nil {
		writeError(w, "reload project", path, err)
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{Path: path, Outcome: outcome.String()})
}

// Search handles GET /api/search.
//
//	@Summary		Search published properties by name or value
//	@Tags			evaluations
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.SearchProperties(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", "", err)
		return
	}
	if hits == nil {
		hits = []index.PropertyHit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}
