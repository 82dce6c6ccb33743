package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/aisdlc/copilot/internal/config"
	"github.com/aisdlc/copilot/internal/events"
	"github.com/aisdlc/copilot/internal/generator"
	"github.com/aisdlc/copilot/internal/github"
	"github.com/aisdlc/copilot/internal/history"
	"github.com/aisdlc/copilot/internal/llm"
	"github.com/aisdlc/copilot/internal/parser"
	"github.com/aisdlc/copilot/internal/prompts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout bounds a whole request, LLM fallback included
const requestTimeout = 5 * time.Minute

// Deps are the collaborators the server is built from. Only LLM is required.
type Deps struct {
	// LLM serves every generation; usually a cached router
	LLM llm.Generator

	// Router exposes provider order and usage stats
	Router *llm.Router

	// Cache reports response cache stats
	Cache llm.Cache

	Personas *prompts.Catalog
	Parser   *parser.Parser
	History  history.Store
	Events   events.Publisher

	// GitHubBaseURL overrides the GitHub API endpoint
	GitHubBaseURL string
}

// Server represents the API server
type Server struct {
	cfg       *config.Config
	router    *chi.Mux
	llm       llm.Generator
	llmRouter *llm.Router
	cache     llm.Cache
	personas  *prompts.Catalog
	testcases *generator.TestCaseGenerator
	pytest    *generator.PyTestGenerator
	history   history.Store
	events    events.Publisher
	githubURL string
	started   time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.LLM == nil {
		return nil, errors.New("api: LLM generator is required")
	}
	if deps.Personas == nil {
		deps.Personas = prompts.DefaultCatalog()
	}
	if deps.History == nil {
		deps.History = history.NewMemoryStore(history.DefaultCapacity)
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.GitHubBaseURL == "" {
		deps.GitHubBaseURL = github.DefaultBaseURL
	}

	s := &Server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		llm:       deps.LLM,
		llmRouter: deps.Router,
		cache:     deps.Cache,
		personas:  deps.Personas,
		testcases: generator.NewTestCaseGenerator(deps.LLM, deps.Personas),
		pytest:    generator.NewPyTestGenerator(deps.LLM, deps.Parser, cfg.OutputRoot),
		history:   deps.History,
		events:    deps.Events,
		githubURL: deps.GitHubBaseURL,
		started:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(corsMiddleware(s.cfg.CORSOrigins))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.root)
	s.router.Get("/health", s.healthCheck)

	s.router.Route("/pytest", func(r chi.Router) {
		r.Post("/generate", s.generatePyTest)
		r.Post("/generate-from-requirement", s.generatePyTestFromRequirement)
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.apiStatus)

		r.Post("/testcases/generate", s.generateTestCases)

		// LLM
		r.Post("/llm/test", s.llmTest)
		r.Get("/llm/usage", s.llmUsage)

		r.Get("/personas", s.listPersonas)
		r.Get("/history", s.listHistory)
		r.Get("/schema/{name}", s.getSchema)

		// GitHub
		r.Route("/github", func(r chi.Router) {
			r.Get("/repo", s.githubRepo)
			r.Get("/contents", s.githubContents)
			r.Get("/file", s.githubFile)
			r.Get("/files", s.githubFiles)
			r.Get("/python-files", s.githubPythonFiles)
			r.Get("/search", s.githubSearch)
		})
	})
}
