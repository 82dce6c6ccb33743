package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aisdlc/copilot/internal/generator"
	"github.com/aisdlc/copilot/internal/history"
	"github.com/aisdlc/copilot/pkg/model"
	"github.com/rs/zerolog/log"
)

// recordTimeout bounds history and event writes after a response is ready
const recordTimeout = 5 * time.Second

// generateTestCases handles POST /api/v1/testcases/generate
func (s *Server) generateTestCases(w http.ResponseWriter, r *http.Request) {
	var req model.TestCaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.testcases.Generate(r.Context(), req)
	if err != nil {
		if errs, ok := validationError(err); ok {
			respondValidation(w, errs)
			return
		}
		log.Error().Err(err).Msg("test case generation failed")
		respondError(w, http.StatusInternalServerError, generator.TestCaseErrorDetail(err))
		return
	}

	rec := history.NewRecord(history.KindTestCases, summarize(req.Requirement))
	rec.Count = result.Count()
	s.record(r.Context(), rec, result.Meta)

	respondJSON(w, http.StatusOK, result.Body())
}

// generatePyTest handles POST /pytest/generate
func (s *Server) generatePyTest(w http.ResponseWriter, r *http.Request) {
	var req model.PyTestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.pytest.FromTestCases(r.Context(), req)
	if err != nil {
		s.pytestFailed(w, err)
		return
	}

	titles := make([]string, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		titles = append(titles, tc.Title)
	}
	rec := history.NewRecord(history.KindPyTest, summarize(strings.Join(titles, "; ")))
	rec.ModuleName = result.Response.ModuleName
	rec.Count = result.Response.TestCount
	s.record(r.Context(), rec, result.Meta)

	respondJSON(w, http.StatusOK, result.Response)
}

// generatePyTestFromRequirement handles POST /pytest/generate-from-requirement
func (s *Server) generatePyTestFromRequirement(w http.ResponseWriter, r *http.Request) {
	var req model.PyTestFromRequirementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.pytest.FromRequirement(r.Context(), req)
	if err != nil {
		s.pytestFailed(w, err)
		return
	}

	rec := history.NewRecord(history.KindPyTestRequirement, summarize(req.Requirement))
	rec.ModuleName = result.Response.ModuleName
	rec.Count = result.Response.TestCount
	s.record(r.Context(), rec, result.Meta)

	respondJSON(w, http.StatusOK, result.Response)
}

func (s *Server) pytestFailed(w http.ResponseWriter, err error) {
	if errs, ok := validationError(err); ok {
		respondValidation(w, errs)
		return
	}
	log.Error().Err(err).Msg("pytest generation failed")
	respondError(w, http.StatusInternalServerError, generator.PyTestErrorDetail(err))
}

// record stores and announces a finished generation. Failures are logged
// and never reach the client.
func (s *Server) record(ctx context.Context, rec *history.Record, meta generator.Meta) {
	rec.Provider = meta.Provider
	rec.Model = meta.Model
	rec.DurationMS = meta.Duration.Milliseconds()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.history.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Str("kind", string(rec.Kind)).Msg("failed to save history record")
	}
	if err := s.events.Publish(ctx, rec); err != nil {
		log.Warn().Err(err).Str("kind", string(rec.Kind)).Msg("failed to publish generation event")
	}
}

// summarize keeps the first 120 runes of s
func summarize(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= 120 {
		return s
	}
	return string(runes[:120]) + "..."
}
