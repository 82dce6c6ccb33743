package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aisdlc/copilot/internal/config"
	"github.com/aisdlc/copilot/internal/llm"
	"github.com/aisdlc/copilot/internal/prompts"
	"github.com/aisdlc/copilot/pkg/model"
	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"
)

const (
	defaultTestPrompt   = "Say hello in one sentence."
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// schemaTypes are the payloads published under /api/v1/schema/{name}
var schemaTypes = map[string]any{
	"testcase_request":                &model.TestCaseRequest{},
	"testcase_response":               &model.TestCaseResponse{},
	"markdown_response":               &model.MarkdownResponse{},
	"test_case":                       &model.TestCase{},
	"pytest_request":                  &model.PyTestRequest{},
	"pytest_from_requirement_request": &model.PyTestFromRequirementRequest{},
	"pytest_response":                 &model.PyTestResponse{},
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to " + config.AppName,
		"version": config.AppVersion,
		"docs":    "/api/v1/schema/{name}",
		"health":  "/health",
		"api":     "/api/v1/status",
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) apiStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"app":         config.AppName,
		"version":     config.AppVersion,
		"environment": s.cfg.Env,
		"debug":       s.cfg.Debug,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// llmTest sends a one-off prompt and always answers 200 with a success flag
func (s *Server) llmTest(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	if prompt == "" {
		prompt = defaultTestPrompt
	}

	resp, err := s.llm.Generate(r.Context(), &llm.Request{
		Prompt:      prompt,
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.DefaultTemperature,
	})
	if err != nil {
		log.Error().Err(err).Msg("LLM test failed")
		respondJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"prompt":  prompt,
			"error":   err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"prompt":   prompt,
		"response": resp.Content,
		"provider": resp.Provider,
		"model":    resp.Model,
	})
}

func (s *Server) llmUsage(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"providers": []llm.Provider{},
	}

	if s.llmRouter != nil {
		out["providers"] = s.llmRouter.Providers()
		out["primary"] = s.llmRouter.Primary()
		out["usage"] = s.llmRouter.Usage().Stats()
		out["recent"] = s.llmRouter.Usage().RecentRecords(20)
	}
	if s.cache != nil {
		out["cache"] = s.cache.Stats()
	}

	respondJSON(w, http.StatusOK, out)
}

type personaSummary struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) listPersonas(w http.ResponseWriter, r *http.Request) {
	list := s.personas.List()
	out := make([]personaSummary, 0, len(list))
	for _, p := range list {
		out = append(out, personaSummary{Key: p.Key, Name: p.Name, Description: p.Description})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"default":  prompts.DefaultPersona,
		"personas": out,
	})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list history")
		respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, ok := schemaTypes[name]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown schema: "+name)
		return
	}

	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	respondJSON(w, http.StatusOK, reflector.Reflect(v))
}
