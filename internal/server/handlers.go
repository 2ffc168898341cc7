package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/engine"
	"github.com/mapforge-io/mapforge/internal/infer"
	"github.com/mapforge-io/mapforge/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

type validationResponse struct {
	Errors   []dsl.ValidationIssue `json:"errors"`
	Warnings []dsl.ValidationIssue `json:"warnings"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mapping json.RawMessage  `json:"mapping"`
		Rows    []map[string]any `json:"rows"`
	}
	m, ok := s.decodeMapping(w, r, &req, func() json.RawMessage { return req.Mapping })
	if !ok {
		return
	}
	result := s.engine.Validate(m, req.Rows)
	writeJSON(w, http.StatusOK, validationResponse{
		Errors:   nonNil(result.Errors),
		Warnings: nonNil(result.Warnings),
	})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mapping     json.RawMessage `json:"mapping"`
		IncludePlan bool            `json:"include_plan"`
	}
	m, ok := s.decodeMapping(w, r, &req, func() json.RawMessage { return req.Mapping })
	if !ok {
		return
	}
	art, err := s.engine.Compile(m, req.IncludePlan)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mapping json.RawMessage  `json:"mapping"`
		Rows    []map[string]any `json:"rows"`
	}
	m, ok := s.decodeMapping(w, r, &req, func() json.RawMessage { return req.Mapping })
	if !ok {
		return
	}
	result, err := s.engine.DryRun(m, req.Rows)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckIDs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDPolicy *dsl.IDPolicy    `json:"id_policy"`
		Rows     []map[string]any `json:"rows"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.IDPolicy == nil || len(req.IDPolicy.From) == 0 {
		writeError(w, http.StatusBadRequest, "id_policy with a from list is required")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.CheckIDs(req.IDPolicy, req.Rows))
}

func (s *Server) handleInferTypes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rows    []map[string]any `json:"rows"`
		Globals dsl.Globals      `json:"globals"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows are required")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.InferTypes(req.Rows, req.Globals))
}

func (s *Server) handleEstimateSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mapping           json.RawMessage    `json:"mapping"`
		FieldStats        []infer.FieldStats `json:"field_stats"`
		NumDocs           int64              `json:"num_docs"`
		Replicas          *int               `json:"replicas"`
		TargetShardSizeGB float64            `json:"target_shard_size_gb"`
	}
	m, ok := s.decodeMapping(w, r, &req, func() json.RawMessage { return req.Mapping })
	if !ok {
		return
	}
	replicas := infer.DefaultReplicas
	if req.Replicas != nil {
		replicas = *req.Replicas
	}
	writeJSON(w, http.StatusOK, s.engine.EstimateSize(m, req.FieldStats, req.NumDocs, replicas, req.TargetShardSizeGB))
}

// decodeMapping decodes the request body into req, then parses the raw
// mapping document it carries. Responds and returns false on any failure.
func (s *Server) decodeMapping(w http.ResponseWriter, r *http.Request, req any, mapping func() json.RawMessage) (*dsl.Mapping, bool) {
	if !s.decodeBody(w, r, req) {
		return nil, false
	}
	raw := mapping()
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "mapping is required")
		return nil, false
	}
	m, err := dsl.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return m, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds 5 MB")
			return false
		}
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Errors:   nonNil(verr.Issues),
			Warnings: []dsl.ValidationIssue{},
		})
		return
	}
	logging.FromCtx(r.Context()).Errorf("request failed", map[string]any{
		"route": r.URL.Path,
		"error": err.Error(),
	})
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func nonNil(issues []dsl.ValidationIssue) []dsl.ValidationIssue {
	if issues == nil {
		return []dsl.ValidationIssue{}
	}
	return issues
}
