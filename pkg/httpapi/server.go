// Package httpapi is the thin HTTP host (ambient, supplementary): request
// decoding, pipeline-version header resolution and response encoding only,
// exposing exactly spec §6's surface over github.com/go-chi/chi/v5. Every
// core package above stays host-agnostic; this layer never holds business
// logic beyond routing and status-code mapping.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sipeed/picoclaw/pkg/apperr"
	"github.com/sipeed/picoclaw/pkg/llmgw"
	"github.com/sipeed/picoclaw/pkg/logger"
	"github.com/sipeed/picoclaw/pkg/memory"
	"github.com/sipeed/picoclaw/pkg/pipeline"
	"github.com/sipeed/picoclaw/pkg/registry"
	"github.com/sipeed/picoclaw/pkg/sgr"
	"github.com/sipeed/picoclaw/pkg/tools"
)

const defaultPipelineVersion = "0.1"

var supportedPipelineVersions = []string{"0.1", "1.0"}

// Server holds every dependency a handler might need. It never constructs
// these itself — cmd/chatserver wires them once at startup.
type Server struct {
	Pipeline             *pipeline.Pipeline
	Store                memory.Store
	Scenarios             *registry.ScenarioRegistry
	Tools                 *tools.Registry
	Gateway               *llmgw.Gateway
	SGROptions            sgr.Options
	AgentPipelineVersion  string
}

// Router builds the chi mux exposing spec §6's surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/config", s.handleConfig)
	r.Get("/tools", s.handleTools)
	r.Post("/chat", s.handleChat)
	r.Get("/history", s.handleHistory)
	r.Get("/summary", s.handleSummary)

	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", s.handleListScenarios)
		r.Post("/", s.handleCreateScenario)
		r.Get("/{name}", s.handleGetScenario)
		r.Patch("/{name}", s.handlePatchScenario)
		r.Delete("/{name}", s.handleDeleteScenario)
	})

	r.Post("/sgr/convert", s.handleSGRConvert)

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.DebugCF("httpapi", "request", map[string]interface{}{"method": r.Method, "path": r.URL.Path})
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorCF("httpapi", "failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	} else {
		appErr = apperr.New(apperr.KindScenarioRuntime, "httpapi", err)
	}

	status := appErr.StatusCode()
	if appErr.Kind == apperr.KindUpstreamLLM {
		if classification, ok := appErr.Fields["classification"].(string); ok {
			status = apperr.UpstreamStatus(classification)
		}
	}

	writeJSON(w, status, map[string]interface{}{"error": appErr.Error()})
}

// pipelineVersion resolves X-Agent-Pipeline-Version, falling back to the
// configured AgentPipelineVersion, then "0.1" — matching spec §6's header
// contract (the process-wide config default is named AGENT_PIPELINE_VERSION
// and itself defaults to "0.1" as well).
func (s *Server) pipelineVersion(r *http.Request) string {
	if v := r.Header.Get("X-Agent-Pipeline-Version"); v != "" {
		return v
	}
	if s.AgentPipelineVersion != "" {
		return s.AgentPipelineVersion
	}
	return defaultPipelineVersion
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default_pipeline_version":   s.AgentPipelineVersion,
		"supported_pipeline_versions": supportedPipelineVersions,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Tools.Specs())
}
