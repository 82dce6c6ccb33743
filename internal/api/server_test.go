package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aisdlc/copilot/internal/config"
	"github.com/aisdlc/copilot/internal/history"
	"github.com/aisdlc/copilot/internal/llm"
	"github.com/aisdlc/copilot/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM answers every request with a fixed reply
type fakeLLM struct {
	mu       sync.Mutex
	content  string
	provider llm.Provider
	err      error
	requests []llm.Request
}

func (f *fakeLLM) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, *req)
	if f.err != nil {
		return nil, f.err
	}
	provider := f.provider
	if provider == "" {
		provider = llm.ProviderGroq
	}
	return &llm.Response{Content: f.content, Provider: provider, Model: "fake-model"}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakePublisher collects published records
type fakePublisher struct {
	mu      sync.Mutex
	records []*history.Record
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, r *history.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
	return p.err
}

func (p *fakePublisher) Close() {}

// failingStore rejects every write
type failingStore struct{}

func (failingStore) Save(context.Context, *history.Record) error { return errors.New("disk full") }
func (failingStore) List(context.Context, int) ([]history.Record, error) {
	return nil, errors.New("disk full")
}
func (failingStore) Close() {}

type testEnv struct {
	server    *Server
	llm       *fakeLLM
	history   *history.MemoryStore
	events    *fakePublisher
	outputDir string
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:         "test",
		Debug:       true,
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		OutputRoot:  t.TempDir(),
	}
}

func setupTestServer(t *testing.T, gen *fakeLLM, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	env := &testEnv{
		llm:       gen,
		history:   history.NewMemoryStore(10),
		events:    &fakePublisher{},
		outputDir: cfg.OutputRoot,
	}

	deps := Deps{
		LLM:     gen,
		Parser:  parser.NewParser(),
		History: env.history,
		Events:  env.events,
	}
	for _, m := range mutate {
		m(&deps)
	}

	server, err := NewServer(cfg, deps)
	require.NoError(t, err)
	env.server = server
	return env
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

const twoCases = `{"test_cases": [
  {"id": "TC001", "title": "Valid login", "description": "d", "preconditions": [], "steps": ["a"], "expected_result": "ok", "priority": "high", "test_type": "functional"},
  {"id": "TC002", "title": "Bad password", "description": "d", "preconditions": [], "steps": ["a"], "expected_result": "error", "priority": "medium", "test_type": "negative"}
]}`

const pytestReply = "```python\nimport pytest\n\ndef test_login():\n    assert True\n\ndef test_logout():\n    assert True\n```"

// =============================================================================
// Construction and meta endpoints
// =============================================================================

func TestNewServer_RequiresLLM(t *testing.T) {
	_, err := NewServer(testConfig(t), Deps{})
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	rr := doRequest(t, env.server, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decodeBody(t, rr)["status"])
}

func TestAPIStatus(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	rr := doRequest(t, env.server, "GET", "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "AI SDLC Co-Pilot", body["app"])
	assert.Equal(t, "0.1.0", body["version"])
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, true, body["debug"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRoot(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	rr := doRequest(t, env.server, "GET", "/", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "Welcome to AI SDLC Co-Pilot", body["message"])
	assert.Equal(t, "/health", body["health"])
	assert.Equal(t, "/api/v1/status", body["api"])
}

func TestCorsMiddleware(t *testing.T) {
	handler := corsMiddleware([]string{"http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusTeapot, rr.Code)
		assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
		assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://evil.example")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
	})

	t.Run("wildcard", func(t *testing.T) {
		h := corsMiddleware([]string{"*"})(http.NotFoundHandler())
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://anything.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, "http://anything.example", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRespondJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	respondJSON(rr, http.StatusCreated, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"key":"value"}`, rr.Body.String())
}

func TestRespondError(t *testing.T) {
	rr := httptest.NewRecorder()
	respondError(rr, http.StatusBadGateway, "upstream down")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.JSONEq(t, `{"detail":"upstream down"}`, rr.Body.String())
}

// =============================================================================
// Test case generation
// =============================================================================

func TestGenerateTestCases(t *testing.T) {
	gen := &fakeLLM{content: twoCases, provider: llm.ProviderGemini}
	env := setupTestServer(t, gen)

	rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate",
		`{"requirement": "User should be able to login with email and password", "num_cases": 2}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["total_count"])
	assert.Equal(t, "gemini", body["llm_provider"])
	cases := body["test_cases"].([]any)
	require.Len(t, cases, 2)
	assert.Equal(t, "negative", cases[1].(map[string]any)["test_type"])

	records, _ := env.history.List(context.Background(), 0)
	require.Len(t, records, 1)
	assert.Equal(t, history.KindTestCases, records[0].Kind)
	assert.Equal(t, 2, records[0].Count)
	assert.Equal(t, "gemini", records[0].Provider)
	assert.Equal(t, "fake-model", records[0].Model)

	require.Len(t, env.events.records, 1)
	assert.Equal(t, records[0].ID, env.events.records[0].ID)
}

func TestGenerateTestCases_Markdown(t *testing.T) {
	gen := &fakeLLM{content: "## TC001: One\n## TC002: Two\n## TC003: Three"}
	env := setupTestServer(t, gen)

	rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate",
		`{"requirement": "Users can export reports as PDF", "output_format": "markdown"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, float64(3), body["total_count"])
	assert.Contains(t, body["markdown"], "## TC002")
	assert.NotContains(t, body, "test_cases")
}

func TestGenerateTestCases_Persona(t *testing.T) {
	gen := &fakeLLM{content: twoCases}
	env := setupTestServer(t, gen)

	rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate",
		`{"requirement": "Login form rejects SQL injection", "persona": "security_analyst"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, gen.requests[0].System, "security")
}

func TestGenerateTestCases_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{"malformed json", `{"requirement": `, http.StatusBadRequest, "invalid JSON body"},
		{"empty body", ``, http.StatusBadRequest, "invalid JSON body"},
		{"wrong type", `{"requirement": "long enough requirement", "num_cases": "five"}`, http.StatusUnprocessableEntity, "num_cases"},
		{"short requirement", `{"requirement": "short"}`, http.StatusUnprocessableEntity, "requirement: must be at least 10 characters"},
		{"too many cases", `{"requirement": "long enough requirement", "num_cases": 21}`, http.StatusUnprocessableEntity, "num_cases"},
		{"bad format", `{"requirement": "long enough requirement", "output_format": "xml"}`, http.StatusUnprocessableEntity, "output_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeLLM{content: twoCases}
			env := setupTestServer(t, gen)

			rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate", tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, decodeBody(t, rr)["detail"], tt.detail)
			assert.Equal(t, 0, gen.calls())
		})
	}
}

func TestGenerateTestCases_ValidationErrorList(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate", `{"requirement": "tiny", "num_cases": 0}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "requirement", resp.Errors[0].Field)
	assert.Equal(t, "num_cases", resp.Errors[1].Field)
}

func TestGenerateTestCases_LLMFailures(t *testing.T) {
	tests := []struct {
		name   string
		gen    *fakeLLM
		detail string
	}{
		{"provider error", &fakeLLM{err: llm.ErrNoProviders}, "Failed to generate test cases: no LLM configured"},
		{"invalid json", &fakeLLM{content: "I cannot do that"}, "LLM returned invalid JSON. Please try again."},
		{"no valid cases", &fakeLLM{content: `{"test_cases": [{"priority": "urgent"}]}`}, "No valid test cases could be generated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, tt.gen)

			rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate",
				`{"requirement": "User should be able to reset password"}`)
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Contains(t, decodeBody(t, rr)["detail"], tt.detail)

			records, _ := env.history.List(context.Background(), 0)
			assert.Empty(t, records)
		})
	}
}

func TestGenerate_RecordFailuresDoNotFailRequest(t *testing.T) {
	gen := &fakeLLM{content: twoCases}
	pub := &fakePublisher{err: errors.New("nats down")}
	env := setupTestServer(t, gen, func(d *Deps) {
		d.History = failingStore{}
		d.Events = pub
	})

	rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate",
		`{"requirement": "User should be able to reset password"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, pub.records, 1)
}

// =============================================================================
// Pytest generation
// =============================================================================

func TestGeneratePyTest(t *testing.T) {
	gen := &fakeLLM{content: pytestReply}
	env := setupTestServer(t, gen)

	rr := doRequest(t, env.server, "POST", "/pytest/generate", `{
		"test_cases": [{"title": "Login works", "expected_result": "Dashboard shown"}],
		"module_name": "test_login",
		"output_path": "generated"
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, "test_login", body["module_name"])
	assert.Equal(t, float64(2), body["test_count"])
	assert.Equal(t, "groq", body["llm_provider"])
	assert.Nil(t, body["conftest_code"])
	assert.Equal(t, true, body["syntax_valid"])
	assert.Equal(t, []any{"test_login", "test_logout"}, body["test_functions"])
	assert.Equal(t, filepath.Join(env.outputDir, "generated", "test_login.py"), body["saved_to"])
	assert.False(t, strings.HasPrefix(body["code"].(string), "```"))

	assert.Equal(t, 0.3, gen.requests[0].Temperature)
	assert.Contains(t, gen.requests[0].Prompt, "### Test Case 1: TC001")

	records, _ := env.history.List(context.Background(), 0)
	require.Len(t, records, 1)
	assert.Equal(t, history.KindPyTest, records[0].Kind)
	assert.Equal(t, "test_login", records[0].ModuleName)
	assert.Equal(t, "Login works", records[0].Summary)
}

func TestGeneratePyTest_NoSave(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{content: pytestReply})

	rr := doRequest(t, env.server, "POST", "/pytest/generate",
		`{"test_cases": [{"title": "A", "expected_result": "B"}], "output_path": ""}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Contains(t, body, "saved_to")
	assert.Nil(t, body["saved_to"])
	assert.Equal(t, "test_generated", body["module_name"])
}

func TestGeneratePyTest_Conftest(t *testing.T) {
	reply := pytestReply + "\n\n## conftest.py\n```python\nimport pytest\n\n@pytest.fixture\ndef client():\n    return None\n```"
	env := setupTestServer(t, &fakeLLM{content: reply})

	rr := doRequest(t, env.server, "POST", "/pytest/generate",
		`{"test_cases": [{"title": "A", "expected_result": "B"}], "include_conftest": true, "output_path": ""}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Contains(t, body["conftest_code"], "def client():")
}

func TestGeneratePyTest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no cases", `{"test_cases": []}`, "test_cases"},
		{"missing title", `{"test_cases": [{"expected_result": "B"}]}`, "test_cases[0].title"},
		{"missing expected", `{"test_cases": [{"title": "A"}]}`, "test_cases[0].expected_result"},
		{"bad module", `{"test_cases": [{"title": "A", "expected_result": "B"}], "module_name": "Test-Login"}`, "module_name"},
		{"escaping path", `{"test_cases": [{"title": "A", "expected_result": "B"}], "output_path": "../../etc"}`, "output_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeLLM{content: pytestReply}
			env := setupTestServer(t, gen)

			rr := doRequest(t, env.server, "POST", "/pytest/generate", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
			assert.Contains(t, decodeBody(t, rr)["detail"], tt.field)
			assert.Equal(t, 0, gen.calls())
		})
	}
}

func TestGeneratePyTest_LLMFailure(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{err: errors.New("all providers failed")})

	rr := doRequest(t, env.server, "POST", "/pytest/generate",
		`{"test_cases": [{"title": "A", "expected_result": "B"}]}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to generate pytest code: all providers failed", decodeBody(t, rr)["detail"])
}

func TestGeneratePyTestFromRequirement(t *testing.T) {
	gen := &fakeLLM{content: pytestReply}
	env := setupTestServer(t, gen)

	rr := doRequest(t, env.server, "POST", "/pytest/generate-from-requirement",
		`{"requirement": "Users can reset their password by email", "num_tests": 3, "output_path": ""}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["test_count"])
	assert.Nil(t, body["conftest_code"])
	assert.Contains(t, gen.requests[0].Prompt, "identify ~3 test scenarios")

	records, _ := env.history.List(context.Background(), 0)
	require.Len(t, records, 1)
	assert.Equal(t, history.KindPyTestRequirement, records[0].Kind)
}

func TestGeneratePyTestFromRequirement_Validation(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{content: pytestReply})

	rr := doRequest(t, env.server, "POST", "/pytest/generate-from-requirement",
		`{"requirement": "Users can reset their password", "num_tests": 16}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["detail"], "num_tests")
}

// =============================================================================
// LLM, personas, history, schema
// =============================================================================

func TestLLMTest(t *testing.T) {
	gen := &fakeLLM{content: "Hello there."}
	env := setupTestServer(t, gen)

	rr := doRequest(t, env.server, "POST", "/api/v1/llm/test", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Say hello in one sentence.", body["prompt"])
	assert.Equal(t, "Hello there.", body["response"])

	rr = doRequest(t, env.server, "POST", "/api/v1/llm/test?prompt=ping", "")
	assert.Equal(t, "ping", decodeBody(t, rr)["prompt"])
	assert.Equal(t, "ping", gen.requests[1].Prompt)
}

func TestLLMTest_Failure(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{err: llm.ErrNoProviders})

	rr := doRequest(t, env.server, "POST", "/api/v1/llm/test", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "no LLM configured")
}

// stubClient is a provider that always answers
type stubClient struct{ name llm.Provider }

func (c stubClient) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: "ok", Provider: c.name, Model: "m", InputTokens: 3, OutputTokens: 4}, nil
}
func (c stubClient) Name() llm.Provider { return c.name }
func (c stubClient) Available() bool    { return true }

func TestLLMUsage(t *testing.T) {
	router := llm.NewRouterWithClients(llm.ProviderGroq, stubClient{llm.ProviderGemini}, stubClient{llm.ProviderGroq})
	cache := llm.NewMemoryCache(10, 0)
	defer cache.Close()
	cached := llm.NewCachedRouter(router, cache, 0)

	cfg := testConfig(t)
	server, err := NewServer(cfg, Deps{LLM: cached, Router: router, Cache: cache})
	require.NoError(t, err)

	doRequest(t, server, "POST", "/api/v1/llm/test", "")
	doRequest(t, server, "POST", "/api/v1/llm/test", "")

	rr := doRequest(t, server, "GET", "/api/v1/llm/usage", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, []any{"groq", "gemini"}, body["providers"])
	assert.Equal(t, "groq", body["primary"])

	usage := body["usage"].(map[string]any)
	assert.Equal(t, float64(1), usage["total_requests"])
	assert.Equal(t, float64(7), usage["total_tokens"])

	cacheStats := body["cache"].(map[string]any)
	assert.Equal(t, float64(1), cacheStats["hits"])
}

func TestLLMUsage_NoRouter(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	rr := doRequest(t, env.server, "GET", "/api/v1/llm/usage", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, decodeBody(t, rr)["providers"])
}

func TestListPersonas(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	rr := doRequest(t, env.server, "GET", "/api/v1/personas", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "qa_engineer", body["default"])

	personas := body["personas"].([]any)
	require.Len(t, personas, 5)
	first := personas[0].(map[string]any)
	assert.Equal(t, "qa_engineer", first["key"])
	assert.NotContains(t, first, "prompt")
}

func TestListHistory(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{content: twoCases})

	for i := 0; i < 3; i++ {
		rr := doRequest(t, env.server, "POST", "/api/v1/testcases/generate",
			`{"requirement": "User should be able to reset password"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := doRequest(t, env.server, "GET", "/api/v1/history?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["count"])

	rr = doRequest(t, env.server, "GET", "/api/v1/history", "")
	assert.Equal(t, float64(3), decodeBody(t, rr)["count"])

	rr = doRequest(t, env.server, "GET", "/api/v1/history?limit=abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestListHistory_StoreError(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{}, func(d *Deps) { d.History = failingStore{} })

	rr := doRequest(t, env.server, "GET", "/api/v1/history", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetSchema(t *testing.T) {
	env := setupTestServer(t, &fakeLLM{})

	rr := doRequest(t, env.server, "GET", "/api/v1/schema/testcase_request", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, []any{"requirement"}, body["required"])
	props := body["properties"].(map[string]any)
	assert.Contains(t, props, "num_cases")
	assert.Contains(t, props, "output_format")

	rr = doRequest(t, env.server, "GET", "/api/v1/schema/pytest_request", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"test_cases"}, decodeBody(t, rr)["required"])

	rr = doRequest(t, env.server, "GET", "/api/v1/schema/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =============================================================================
// GitHub proxy
// =============================================================================

func setupGitHubServer(t *testing.T, gh http.Handler) *testEnv {
	t.Helper()
	upstream := httptest.NewServer(gh)
	t.Cleanup(upstream.Close)
	return setupTestServer(t, &fakeLLM{}, func(d *Deps) { d.GitHubBaseURL = upstream.URL })
}

func TestGitHubRepo(t *testing.T) {
	var gotAuth string
	env := setupGitHubServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/repos/octo/hello":
			w.Write([]byte(`{"default_branch": "develop", "description": "demo", "language": "Python", "private": false}`))
		default:
			http.NotFound(w, r)
		}
	}))

	req := httptest.NewRequest("GET", "/api/v1/github/repo?url=https://github.com/octo/hello.git", nil)
	req.Header.Set("X-GitHub-Token", "secret")
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, "octo", body["owner"])
	assert.Equal(t, "hello", body["repo"])
	assert.Equal(t, "develop", body["default_branch"])
	assert.Equal(t, "Python", body["language"])
	assert.Equal(t, "Bearer secret", gotAuth)

	rr = doRequest(t, env.server, "GET", "/api/v1/github/repo?url=octo/missing", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["detail"], "Repository not found: octo/missing")
}

func TestGitHubRepo_BadURL(t *testing.T) {
	env := setupGitHubServer(t, http.NotFoundHandler())

	rr := doRequest(t, env.server, "GET", "/api/v1/github/repo", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doRequest(t, env.server, "GET", "/api/v1/github/repo?url=https://gitlab.com/a/b/c", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["detail"], "Invalid GitHub URL format")
}

func TestGitHubPythonFiles(t *testing.T) {
	env := setupGitHubServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/octo/hello/contents/":
			w.Write([]byte(`[
				{"name": "app.py", "path": "app.py", "type": "file", "size": 10},
				{"name": "README.md", "path": "README.md", "type": "file", "size": 5},
				{"name": "pkg", "path": "pkg", "type": "dir"},
				{"name": "node_modules", "path": "node_modules", "type": "dir"}
			]`))
		case "/repos/octo/hello/contents/pkg":
			w.Write([]byte(`[{"name": "util.py", "path": "pkg/util.py", "type": "file", "size": 7}]`))
		default:
			http.NotFound(w, r)
		}
	}))

	rr := doRequest(t, env.server, "GET", "/api/v1/github/python-files?url=octo/hello", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["count"])

	rr = doRequest(t, env.server, "GET", "/api/v1/github/python-files?url=octo/hello&max=0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestGitHubRequiredParams(t *testing.T) {
	env := setupGitHubServer(t, http.NotFoundHandler())

	for _, path := range []string{
		"/api/v1/github/file?url=octo/hello",
		"/api/v1/github/files?url=octo/hello",
		"/api/v1/github/search?url=octo/hello",
	} {
		rr := doRequest(t, env.server, "GET", path, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, path)
	}
}

func TestGitHubFiles_SkipsFailures(t *testing.T) {
	env := setupGitHubServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/octo/hello/contents/app.py" {
			w.Write([]byte(`{"type": "file", "name": "app.py", "path": "app.py", "content": "cHJpbnQoMSkK", "sha": "abc", "size": 9}`))
			return
		}
		http.NotFound(w, r)
	}))

	rr := doRequest(t, env.server, "GET", "/api/v1/github/files?url=octo/hello&path=app.py&path=gone.py", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["requested"])
	assert.Equal(t, float64(1), body["fetched"])
	files := body["files"].([]any)
	assert.Equal(t, "print(1)\n", files[0].(map[string]any)["content"])
}
