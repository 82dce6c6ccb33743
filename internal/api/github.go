package api

import (
	"net/http"
	"strconv"

	"github.com/aisdlc/copilot/internal/github"
	"github.com/rs/zerolog/log"
)

// githubTarget is the repository a GitHub request points at
type githubTarget struct {
	client *github.Client
	owner  string
	repo   string
}

// githubRequest resolves the url query parameter and the token. The
// X-GitHub-Token header wins over the configured GITHUB_TOKEN.
func (s *Server) githubRequest(w http.ResponseWriter, r *http.Request) (*githubTarget, bool) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		respondError(w, http.StatusUnprocessableEntity, "url query parameter is required")
		return nil, false
	}

	owner, repo, err := github.ParseRepoURL(raw)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}

	token := r.Header.Get("X-GitHub-Token")
	if token == "" {
		token = s.cfg.GitHubToken
	}

	return &githubTarget{
		client: github.NewClient(token, github.WithBaseURL(s.githubURL)),
		owner:  owner,
		repo:   repo,
	}, true
}

func githubFailed(w http.ResponseWriter, err error) {
	log.Warn().Err(err).Msg("github request failed")
	respondError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) githubRepo(w http.ResponseWriter, r *http.Request) {
	t, ok := s.githubRequest(w, r)
	if !ok {
		return
	}

	info, err := t.client.GetRepoInfo(r.Context(), t.owner, t.repo)
	if err != nil {
		githubFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) githubContents(w http.ResponseWriter, r *http.Request) {
	t, ok := s.githubRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	items, err := t.client.ListDirectory(r.Context(), t.owner, t.repo, q.Get("path"), q.Get("branch"))
	if err != nil {
		githubFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) githubFile(w http.ResponseWriter, r *http.Request) {
	t, ok := s.githubRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("path") == "" {
		respondError(w, http.StatusUnprocessableEntity, "path query parameter is required")
		return
	}

	file, err := t.client.GetFileContent(r.Context(), t.owner, t.repo, q.Get("path"), q.Get("branch"))
	if err != nil {
		githubFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

// githubFiles fetches every repeated path parameter, skipping failures
func (s *Server) githubFiles(w http.ResponseWriter, r *http.Request) {
	t, ok := s.githubRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	paths := q["path"]
	if len(paths) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "at least one path query parameter is required")
		return
	}

	files, err := t.client.GetMultipleFiles(r.Context(), t.owner, t.repo, paths, q.Get("branch"))
	if err != nil {
		githubFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"files":     files,
		"requested": len(paths),
		"fetched":   len(files),
	})
}

func (s *Server) githubPythonFiles(w http.ResponseWriter, r *http.Request) {
	t, ok := s.githubRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	maxFiles, ok := intParam(w, q.Get("max"), "max")
	if !ok {
		return
	}

	files, err := t.client.FindPythonFiles(r.Context(), t.owner, t.repo, q.Get("path"), q.Get("branch"), maxFiles)
	if err != nil {
		githubFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"count": len(files),
	})
}

func (s *Server) githubSearch(w http.ResponseWriter, r *http.Request) {
	t, ok := s.githubRequest(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("q") == "" {
		respondError(w, http.StatusUnprocessableEntity, "q query parameter is required")
		return
	}
	maxResults, ok := intParam(w, q.Get("max"), "max")
	if !ok {
		return
	}

	items, err := t.client.SearchCode(r.Context(), t.owner, t.repo, q.Get("q"), q.Get("extension"), maxResults)
	if err != nil {
		githubFailed(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

// intParam parses an optional positive integer; empty yields 0
func intParam(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		respondError(w, http.StatusUnprocessableEntity, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}
