package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sipeed/picoclaw/pkg/apperr"
	"github.com/sipeed/picoclaw/pkg/model"
	"github.com/sipeed/picoclaw/pkg/sgr"
)

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// handleChat runs exactly one turn through the pipeline version named by
// the X-Agent-Pipeline-Version header (0.1 or 1.0), per spec §6.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == "" || req.Message == "" {
		writeError(w, apperr.New(apperr.KindInputValidation, "handleChat", err))
		return
	}

	version := s.pipelineVersion(r)
	var (
		result interface{}
		err    error
	)
	switch version {
	case "0.1":
		result, err = s.Pipeline.RunTurnV01(r.Context(), req.ConversationID, req.Message)
	default:
		result, err = s.Pipeline.RunTurn(r.Context(), req.ConversationID, req.Message)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conversation_id")
	if id == "" {
		writeError(w, apperr.New(apperr.KindInputValidation, "handleHistory", nil))
		return
	}
	history, err := s.Store.GetHistory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation_id": id, "history": history})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conversation_id")
	if id == "" {
		writeError(w, apperr.New(apperr.KindInputValidation, "handleSummary", nil))
		return
	}
	summary, err := s.Store.GetSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation_id": id, "summary": summary})
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	all := s.Scenarios.All()
	out := make([]model.ScenarioDefinition, 0, len(all))
	for _, def := range all {
		out = append(out, def)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, ok := s.Scenarios.Get(name)
	if !ok {
		writeError(w, apperr.New(apperr.KindInputValidation, "handleGetScenario", nil).WithFields(map[string]interface{}{"name": name}))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var def model.ScenarioDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil || def.Name == "" {
		writeError(w, apperr.New(apperr.KindInputValidation, "handleCreateScenario", err))
		return
	}
	s.Scenarios.Add(def)
	writeJSON(w, http.StatusCreated, def)
}

type patchScenarioRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handlePatchScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, ok := s.Scenarios.Get(name)
	if !ok {
		writeError(w, apperr.New(apperr.KindInputValidation, "handlePatchScenario", nil).WithFields(map[string]interface{}{"name": name}))
		return
	}

	var req patchScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInputValidation, "handlePatchScenario", err))
		return
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}
	s.Scenarios.Add(def)
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.Scenarios.Get(name); !ok {
		writeError(w, apperr.New(apperr.KindInputValidation, "handleDeleteScenario", nil).WithFields(map[string]interface{}{"name": name}))
		return
	}
	s.Scenarios.Remove(name)
	w.WriteHeader(http.StatusNoContent)
}

type sgrConvertRequest struct {
	Text             string `json:"text"`
	NameHint         string `json:"name_hint"`
	Strict           bool   `json:"strict"`
	ReturnDiagnostics bool  `json:"return_diagnostics"`
}

// handleSGRConvert exposes C9. A failed conversion maps to HTTP 422 with
// {trace_id, failed_step, diagnostics, last_llm_raw} per spec §4.9/§6;
// diagnostics are included in a successful response only when the caller
// asked for them.
func (s *Server) handleSGRConvert(w http.ResponseWriter, r *http.Request) {
	var req sgrConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, apperr.New(apperr.KindInputValidation, "handleSGRConvert", err))
		return
	}

	result, err := sgr.Convert(r.Context(), s.Gateway, s.Tools.Specs(), req.Text, req.NameHint, req.Strict, s.SGROptions)
	if err != nil {
		if convErr, ok := err.(*sgr.ConversionError); ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"trace_id":     convErr.TraceID,
				"failed_step":  convErr.FailedStep,
				"diagnostics":  convErr.Diagnostics,
				"last_llm_raw": convErr.LastRawLLM,
			})
			return
		}
		writeError(w, err)
		return
	}

	body := map[string]interface{}{"scenario": result.Scenario, "questions": result.Questions}
	if req.ReturnDiagnostics {
		body["diagnostics"] = result.Diagnostics
	}
	writeJSON(w, http.StatusOK, body)
}
