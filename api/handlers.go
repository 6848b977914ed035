package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rorkai/21st-sub000/analyzer"
	"github.com/rorkai/21st-sub000/bundle"
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
)

// SourceRequest is the body of POST /exports and POST /imports.
type SourceRequest struct {
	Code string `json:"code"`
	// Name selects the dialect by extension; tsx when empty.
	Name string         `json:"name,omitempty"`
	Kind ast.SourceKind `json:"kind,omitempty"`
}

// ExportsResponse is the body returned by POST /exports.
type ExportsResponse struct {
	Exports   []string `json:"exports"`
	DemoEntry string   `json:"demo_entry,omitempty"`
	DemoNames []string `json:"demo_names,omitempty"`
	HasErrors bool     `json:"has_errors"`
}

// ImportsResponse is the body returned by POST /imports.
type ImportsResponse struct {
	Edges        []ast.ImportEdge `json:"edges"`
	Dependencies ast.Dependencies `json:"dependencies"`
}

// StripRequest is the body of POST /strip.
type StripRequest struct {
	Demo      string   `json:"demo"`
	SelfNames []string `json:"self_names"`
}

// PromoteRequest is the body of POST /promote.
type PromoteRequest struct {
	Report     analyzer.Report       `json:"report"`
	Dependency ast.UnknownDependency `json:"dependency"`
	URL        string                `json:"url"`
}

// ResolveRequest is the body of POST /resolve.
type ResolveRequest struct {
	Dependencies []catalog.Ref `json:"dependencies"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code"`
	Pending []ast.UnknownDependency `json:"pending,omitempty"`
}

func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	tree, err := ts.ParseFile(r.Context(), sourceName(req.Name), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer tree.Close()

	resp := ExportsResponse{
		Exports:   ast.Names(ts.ExtractExportedSymbols(tree)),
		HasErrors: tree.HasErrors(),
	}
	if req.Kind == ast.KindDemo {
		resp.DemoEntry, _ = ts.ExtractDemoEntryName(tree)
		resp.DemoNames = ts.ExtractDemoNames(tree)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = ast.KindComponent
	}
	tree, err := ts.ParseFile(r.Context(), sourceName(req.Name), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer tree.Close()

	edges := s.opts.Classifier.Classify(tree)
	writeJSON(w, http.StatusOK, ImportsResponse{
		Edges:        edges,
		Dependencies: ast.CollectDependencies(edges, req.Kind),
	})
}

func (s *Server) handleStrip(w http.ResponseWriter, r *http.Request) {
	var req StripRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := ts.StripSelfImports(r.Context(), req.Demo, req.SelfNames)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var sub analyzer.Submission
	if !s.decode(w, r, &sub) {
		return
	}
	report, err := s.opts.Analyzer.Analyze(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Report.PromoteURL(req.Dependency, req.URL); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req.Report)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.opts.Resolver.Resolve(r.Context(), req.Dependencies)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ev := graph.NewResolutionEvent(req.Dependencies, g)
	if err := graph.PublishResolution(r.Context(), s.opts.Publisher, s.opts.Subject, ev); err != nil {
		s.logger.Warn("Failed to publish resolution event",
			"request_id", RequestIDFrom(r.Context()),
			"error", err)
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	var in bundle.BuildInput
	if !s.decode(w, r, &in) {
		return
	}
	m, err := s.opts.Builder.Build(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
				Code:  "too_large",
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Code:  "bad_request",
		})
		return false
	}
	return true
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	resp := ErrorResponse{Error: err.Error()}

	var amb *graph.AmbiguousError
	switch {
	case errors.As(err, &amb):
		status, code = http.StatusConflict, "ambiguous_dependencies"
		resp.Pending = amb.Pending
	case errors.Is(err, ast.ErrParseFailure):
		status, code = http.StatusUnprocessableEntity, "parse_failure"
	case errors.Is(err, bundle.ErrNoDemoEntry):
		status, code = http.StatusUnprocessableEntity, "no_demo_entry"
	case errors.Is(err, bundle.ErrMissingSlug),
		errors.Is(err, analyzer.ErrOwnerRequired),
		errors.Is(err, catalog.ErrInvalidRef),
		errors.Is(err, catalog.ErrInvalidURL):
		status, code = http.StatusBadRequest, "invalid_reference"
	case errors.Is(err, analyzer.ErrUnknownDependency):
		status, code = http.StatusNotFound, "unknown_dependency"
	}
	resp.Code = code

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"request_id", RequestIDFrom(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, resp)
}

func sourceName(name string) string {
	if name == "" {
		return "source.tsx"
	}
	return name
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
