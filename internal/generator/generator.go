package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aisdlc/copilot/internal/llm"
	"github.com/aisdlc/copilot/internal/parser"
	"github.com/aisdlc/copilot/internal/prompts"
	"github.com/aisdlc/copilot/pkg/model"
	"github.com/rs/zerolog/log"
)

// LLM call parameters per generation kind
const (
	testCaseMaxTokens   = 4096
	testCaseTemperature = 0.7
	pytestMaxTokens     = 4096
	pytestTemperature   = 0.3
)

// Meta describes the LLM call behind a generation
type Meta struct {
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Cached       bool
	Duration     time.Duration
}

func newMeta(resp *llm.Response, start time.Time) Meta {
	return Meta{
		Provider:     string(resp.Provider),
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cached:       resp.Cached,
		Duration:     time.Since(start),
	}
}

// TestCaseResult is a completed test-case generation. Exactly one of Cases
// and Markdown is set, matching the requested format.
type TestCaseResult struct {
	Cases    *model.TestCaseResponse
	Markdown *model.MarkdownResponse
	Meta     Meta
}

// Body returns the response payload for the requested format
func (r *TestCaseResult) Body() any {
	if r.Markdown != nil {
		return r.Markdown
	}
	return r.Cases
}

// Count returns the number of generated test cases
func (r *TestCaseResult) Count() int {
	if r.Markdown != nil {
		return r.Markdown.TotalCount
	}
	return r.Cases.TotalCount
}

// TestCaseGenerator turns requirements into QA test cases
type TestCaseGenerator struct {
	llm      llm.Generator
	personas *prompts.Catalog
}

// NewTestCaseGenerator creates a test-case generator. A nil catalog uses the
// built-in personas.
func NewTestCaseGenerator(gen llm.Generator, personas *prompts.Catalog) *TestCaseGenerator {
	if personas == nil {
		personas = prompts.DefaultCatalog()
	}
	return &TestCaseGenerator{llm: gen, personas: personas}
}

// Generate validates req, prompts the LLM and post-processes the reply
func (g *TestCaseGenerator) Generate(ctx context.Context, req model.TestCaseRequest) (*TestCaseResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Int("num_cases", req.NumCases).
		Str("format", string(req.OutputFormat)).
		Str("persona", req.Persona).
		Str("requirement", truncate(req.Requirement, 50)).
		Msg("generating test cases")

	start := time.Now()
	resp, err := g.llm.Generate(ctx, &llm.Request{
		System:      g.personas.SystemPrompt(req.Persona, req.SystemPrompt),
		Prompt:      prompts.TestCaseGenerationPrompt(req.Requirement, req.NumCases, req.IncludeEdgeCases, req.Context, req.OutputFormat),
		MaxTokens:   testCaseMaxTokens,
		Temperature: testCaseTemperature,
	})
	if err != nil {
		return nil, err
	}
	meta := newMeta(resp, start)

	if req.OutputFormat == model.FormatMarkdown {
		count := CountMarkdownCases(resp.Content, req.NumCases)
		log.Info().Int("count", count).Str("provider", meta.Provider).Msg("generated test cases (markdown)")

		return &TestCaseResult{
			Markdown: &model.MarkdownResponse{
				Requirement: req.Requirement,
				Markdown:    resp.Content,
				TotalCount:  count,
				LLMProvider: meta.Provider,
			},
			Meta: meta,
		}, nil
	}

	cases, err := ParseTestCases(resp.Content)
	if err != nil {
		return nil, err
	}

	log.Info().Int("count", len(cases)).Str("provider", meta.Provider).Msg("generated test cases")

	return &TestCaseResult{
		Cases: &model.TestCaseResponse{
			Requirement: req.Requirement,
			TestCases:   cases,
			TotalCount:  len(cases),
			LLMProvider: meta.Provider,
		},
		Meta: meta,
	}, nil
}

// TestCaseErrorDetail renders a test-case generation error for clients
func TestCaseErrorDetail(err error) string {
	var invalid *InvalidJSONError
	switch {
	case errors.As(err, &invalid):
		return "LLM returned invalid JSON. Please try again. Error: " + invalid.Err.Error()
	case errors.Is(err, ErrNoValidTestCases):
		return "No valid test cases could be generated. Please try again."
	default:
		return "Failed to generate test cases: " + err.Error()
	}
}

// PyTestResult is a completed pytest generation
type PyTestResult struct {
	Response *model.PyTestResponse
	Meta     Meta
}

// PyTestGenerator turns test cases or requirements into pytest modules
type PyTestGenerator struct {
	llm        llm.Generator
	parser     *parser.Parser
	outputRoot string
}

// NewPyTestGenerator creates a pytest generator. A nil parser disables code
// analysis. outputRoot, when set, confines saved files to that directory.
func NewPyTestGenerator(gen llm.Generator, p *parser.Parser, outputRoot string) *PyTestGenerator {
	return &PyTestGenerator{llm: gen, parser: p, outputRoot: outputRoot}
}

// FromTestCases generates a pytest module implementing req.TestCases
func (g *PyTestGenerator) FromTestCases(ctx context.Context, req model.PyTestRequest) (*PyTestResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	outputPath, err := ResolveOutputPath(g.outputRoot, req.OutputPath)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("test_cases", len(req.TestCases)).
		Str("module", req.ModuleName).
		Msg("generating pytest code")

	return g.generate(ctx, &llm.Request{
		System:      orDefault(req.SystemPrompt, prompts.PyTestSystemPrompt),
		Prompt:      prompts.PyTestGenerationPrompt(req.TestCases, req.ModuleName, req.IncludeFixtures, req.IncludeConftest),
		MaxTokens:   pytestMaxTokens,
		Temperature: pytestTemperature,
	}, req.ModuleName, outputPath, req.IncludeConftest)
}

// FromRequirement generates a pytest module straight from a requirement
func (g *PyTestGenerator) FromRequirement(ctx context.Context, req model.PyTestFromRequirementRequest) (*PyTestResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	outputPath, err := ResolveOutputPath(g.outputRoot, req.OutputPath)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("num_tests", req.NumTests).
		Str("module", req.ModuleName).
		Msg("generating pytest code from requirement")

	return g.generate(ctx, &llm.Request{
		System:      orDefault(req.SystemPrompt, prompts.PyTestSystemPrompt),
		Prompt:      prompts.PyTestFromRequirementPrompt(req.Requirement, req.Context, req.NumTests, "pytest"),
		MaxTokens:   pytestMaxTokens,
		Temperature: pytestTemperature,
	}, req.ModuleName, outputPath, false)
}

func (g *PyTestGenerator) generate(ctx context.Context, llmReq *llm.Request, module, outputPath string, wantConftest bool) (*PyTestResult, error) {
	start := time.Now()
	resp, err := g.llm.Generate(ctx, llmReq)
	if err != nil {
		return nil, err
	}
	meta := newMeta(resp, start)

	code := CleanCodeResponse(resp.Content)

	out := &model.PyTestResponse{
		ModuleName:  module,
		Code:        code,
		TestCount:   CountTestFunctions(code),
		LLMProvider: meta.Provider,
	}

	var conftest string
	if wantConftest {
		if c, ok := ExtractConftest(resp.Content); ok {
			conftest = c
			out.ConftestCode = &conftest
		}
	}

	if g.parser != nil {
		analysis, err := g.parser.Analyze(ctx, code)
		if err != nil {
			log.Warn().Err(err).Msg("code analysis failed")
		} else {
			out.SyntaxValid = &analysis.Valid
			out.TestFunctions = analysis.TestFunctions
			if !analysis.Valid {
				log.Warn().Str("module", module).Int("line", analysis.ErrorLine).Msg("generated code has syntax errors")
			}
		}
	}

	if outputPath != "" {
		saved, err := SaveCode(outputPath, module, code, conftest)
		if err != nil {
			return nil, err
		}
		out.SavedTo = &saved
	}

	log.Info().Int("test_count", out.TestCount).Str("provider", meta.Provider).Msg("generated pytest code")

	return &PyTestResult{Response: out, Meta: meta}, nil
}

// PyTestErrorDetail renders a pytest generation error for clients
func PyTestErrorDetail(err error) string {
	return fmt.Sprintf("Failed to generate pytest code: %v", err)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
