package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint
	DefaultBaseURL = "https://api.github.com"

	userAgent = "AI-SDLC-Copilot"

	defaultMaxPythonFiles = 50
	defaultMaxResults     = 10
	defaultExtension      = "py"
)

var (
	ErrNotFound     = errors.New("github: not found")
	ErrRateLimited  = errors.New("github: rate limit exceeded")
	ErrAuthRequired = errors.New("github: authentication required")
	ErrNotAFile     = errors.New("github: path is not a file")
)

// skipDirs are never descended into when looking for Python files
var skipDirs = map[string]bool{
	"__pycache__":   true,
	".git":          true,
	"node_modules":  true,
	"venv":          true,
	".venv":         true,
	"env":           true,
	".env":          true,
	"dist":          true,
	"build":         true,
	".tox":          true,
	".pytest_cache": true,
}

// Error is a failed GitHub API call. It unwraps to one of the sentinel
// errors when the status maps to one.
type Error struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.kind
}

func apiError(resp *http.Response, body []byte) *Error {
	return &Error{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("GitHub API error: %d - %s", resp.StatusCode, string(body)),
	}
}

// RepoInfo is the subset of repository metadata the service exposes
type RepoInfo struct {
	Owner         string  `json:"owner"`
	Repo          string  `json:"repo"`
	DefaultBranch string  `json:"default_branch"`
	Description   *string `json:"description"`
	Language      *string `json:"language"`
	Private       bool    `json:"private"`
}

// ContentItem is one entry of a directory listing
type ContentItem struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	SHA         string  `json:"sha"`
	Size        int     `json:"size"`
	Type        string  `json:"type"`
	HTMLURL     string  `json:"html_url"`
	DownloadURL *string `json:"download_url"`
}

// File is a fetched file with its decoded content
type File struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Size    int    `json:"size"`
	URL     string `json:"url"`
}

// SearchResult is one code search hit
type SearchResult struct {
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	SHA     string  `json:"sha"`
	HTMLURL string  `json:"html_url"`
	Score   float64 `json:"score"`
}

// Client talks to the GitHub REST API. The token is optional; without it
// only public repositories are reachable and rate limits are lower.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBaseURL points the client at another API endpoint
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a GitHub API client
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken reports whether requests are authenticated
func (c *Client) HasToken() bool {
	return c.token != ""
}

// GetRepoInfo fetches repository metadata
func (c *Client) GetRepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	resp, body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), nil)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("Repository not found: %s/%s. Make sure the repository exists and is public "+
				"(or provide a token for private repos).", owner, repo),
			kind: ErrNotFound,
		}
	case http.StatusForbidden:
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    "GitHub API rate limit exceeded. Please provide a GitHub token.",
			kind:       ErrRateLimited,
		}
	default:
		return nil, apiError(resp, body)
	}

	var data struct {
		DefaultBranch string  `json:"default_branch"`
		Description   *string `json:"description"`
		Language      *string `json:"language"`
		Private       bool    `json:"private"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse repository info: %w", err)
	}
	if data.DefaultBranch == "" {
		data.DefaultBranch = "main"
	}

	return &RepoInfo{
		Owner:         owner,
		Repo:          repo,
		DefaultBranch: data.DefaultBranch,
		Description:   data.Description,
		Language:      data.Language,
		Private:       data.Private,
	}, nil
}

// ListDirectory lists a directory. An empty path lists the repository root
// and an empty branch uses the default branch. A file path yields a single
// entry.
func (c *Client) ListDirectory(ctx context.Context, owner, repo, path, branch string) ([]ContentItem, error) {
	resp, body, err := c.get(ctx, contentsPath(owner, repo, path), refQuery(branch))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &Error{StatusCode: resp.StatusCode, Message: "Path not found: " + path, kind: ErrNotFound}
	default:
		return nil, apiError(resp, body)
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var item ContentItem
		if err := json.Unmarshal(body, &item); err != nil {
			return nil, fmt.Errorf("failed to parse directory listing: %w", err)
		}
		return []ContentItem{item}, nil
	}

	var items []ContentItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse directory listing: %w", err)
	}
	return items, nil
}

// GetFileContent fetches and decodes a single file
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, branch string) (*File, error) {
	resp, body, err := c.get(ctx, contentsPath(owner, repo, path), refQuery(branch))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &Error{StatusCode: resp.StatusCode, Message: "File not found: " + path, kind: ErrNotFound}
	default:
		return nil, apiError(resp, body)
	}

	var data struct {
		Type    string `json:"type"`
		Path    string `json:"path"`
		Name    string `json:"name"`
		Content string `json:"content"`
		SHA     string `json:"sha"`
		Size    int    `json:"size"`
		HTMLURL string `json:"html_url"`
	}
	// directory listings are arrays and fail here as well
	if err := json.Unmarshal(body, &data); err != nil || data.Type != "file" {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "Path is not a file: " + path, kind: ErrNotAFile}
	}

	content, err := base64.StdEncoding.DecodeString(data.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &File{
		Path:    data.Path,
		Name:    data.Name,
		Content: string(content),
		SHA:     data.SHA,
		Size:    data.Size,
		URL:     data.HTMLURL,
	}, nil
}

// GetMultipleFiles fetches each path in order, skipping the ones that fail
func (c *Client) GetMultipleFiles(ctx context.Context, owner, repo string, paths []string, branch string) ([]File, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		f, err := c.GetFileContent(ctx, owner, repo, p, branch)
		if err != nil {
			if ctx.Err() != nil {
				return files, ctx.Err()
			}
			log.Warn().Err(err).Str("path", p).Msg("failed to fetch file")
			continue
		}
		files = append(files, *f)
	}
	return files, nil
}

// FindPythonFiles walks the repository from path and returns up to maxFiles
// .py paths. Directories the API refuses are skipped.
func (c *Client) FindPythonFiles(ctx context.Context, owner, repo, path, branch string, maxFiles int) ([]string, error) {
	if maxFiles <= 0 {
		maxFiles = defaultMaxPythonFiles
	}

	files := []string{}

	var scan func(dir string) error
	scan = func(dir string) error {
		if len(files) >= maxFiles {
			return nil
		}

		items, err := c.ListDirectory(ctx, owner, repo, dir, branch)
		if err != nil {
			var apiErr *Error
			if errors.As(err, &apiErr) {
				log.Debug().Err(err).Str("dir", dir).Msg("skipping directory")
				return nil
			}
			return err
		}

		for _, item := range items {
			if len(files) >= maxFiles {
				break
			}
			switch {
			case item.Type == "file" && strings.HasSuffix(item.Name, ".py"):
				files = append(files, item.Path)
			case item.Type == "dir" && !skipDirs[item.Name]:
				if err := scan(item.Path); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := scan(path); err != nil {
		return nil, err
	}
	return files, nil
}

// SearchCode runs a code search scoped to the repository
func (c *Client) SearchCode(ctx context.Context, owner, repo, query, extension string, maxResults int) ([]SearchResult, error) {
	if extension == "" {
		extension = defaultExtension
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s repo:%s/%s extension:%s", query, owner, repo, extension))
	q.Set("per_page", strconv.Itoa(min(maxResults, 100)))

	resp, body, err := c.get(ctx, "/search/code", q)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    "GitHub code search requires authentication. Please provide a token.",
			kind:       ErrAuthRequired,
		}
	default:
		return nil, apiError(resp, body)
	}

	var data struct {
		Items []SearchResult `json:"items"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	items := data.Items
	if items == nil {
		items = []SearchResult{}
	}
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read github response: %w", err)
	}
	return resp, body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func contentsPath(owner, repo, path string) string {
	return fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, strings.TrimPrefix(path, "/"))
}

func refQuery(branch string) url.Values {
	if branch == "" {
		return nil
	}
	return url.Values{"ref": {branch}}
}
