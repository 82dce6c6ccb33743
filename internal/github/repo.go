package github

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

var repoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?github\.com/([^/]+)/([^/.]+)(?:\.git)?(?:/.*)?$`),
	regexp.MustCompile(`^git@github\.com:([^/]+)/([^/.]+)(?:\.git)?$`),
	regexp.MustCompile(`^([^/]+)/([^/]+)$`),
}

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validRepoName(s string) bool {
	return s != "." && s != ".." && repoNamePattern.MatchString(s)
}

// ParseRepoURL extracts owner and repository name from a GitHub URL or an
// owner/repo string
func ParseRepoURL(raw string) (owner, repo string, err error) {
	s := strings.TrimSpace(raw)
	for _, p := range repoURLPatterns {
		if m := p.FindStringSubmatch(s); m != nil {
			if !validRepoName(m[1]) || !validRepoName(m[2]) {
				break
			}
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("Invalid GitHub URL format: %s. Expected format: 'owner/repo' or 'https://github.com/owner/repo'", raw)
}

// Cloner checks repositories out locally for offline inspection
type Cloner struct {
	baseDir string
	token   string
	gitURL  string
}

// NewCloner creates a cloner writing checkouts under baseDir
func NewCloner(baseDir, token string) *Cloner {
	return &Cloner{
		baseDir: baseDir,
		token:   token,
		gitURL:  "https://github.com",
	}
}

// CloneResult contains the result of a clone operation
type CloneResult struct {
	Path      string
	CommitSHA string
	Branch    string
}

// Clone shallow-clones owner/repo into <baseDir>/<owner>/<repo>, replacing any
// previous checkout. An empty branch, or one that does not exist, clones the
// default branch.
func (c *Cloner) Clone(ctx context.Context, owner, repo, branch string) (*CloneResult, error) {
	repoDir := filepath.Join(c.baseDir, owner, repo)
	rel, err := filepath.Rel(c.baseDir, repoDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("refusing to clone %s/%s outside %s", owner, repo, c.baseDir)
	}

	if _, err := os.Stat(repoDir); err == nil {
		log.Debug().Str("path", repoDir).Msg("removing existing repo directory")
		if err := os.RemoveAll(repoDir); err != nil {
			return nil, fmt.Errorf("failed to remove existing directory: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(repoDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	cloneURL := fmt.Sprintf("%s/%s/%s.git", c.gitURL, owner, repo)
	log.Info().
		Str("url", cloneURL).
		Str("path", repoDir).
		Msg("cloning repository")

	opts := &git.CloneOptions{
		URL:   cloneURL,
		Depth: 1,
	}
	if c.token != "" {
		opts.Auth = &http.BasicAuth{
			Username: "git",
			Password: c.token,
		}
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	r, err := git.PlainCloneContext(ctx, repoDir, false, opts)
	if err != nil && branch != "" && strings.Contains(err.Error(), "reference not found") {
		log.Debug().Str("branch", branch).Msg("branch not found, trying default")
		_ = os.RemoveAll(repoDir)
		opts.ReferenceName = ""
		opts.SingleBranch = false
		r, err = git.PlainCloneContext(ctx, repoDir, false, opts)
	}
	if err != nil {
		_ = os.RemoveAll(repoDir)
		return nil, fmt.Errorf("failed to clone %s/%s: %w", owner, repo, err)
	}

	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	result := &CloneResult{
		Path:      repoDir,
		CommitSHA: head.Hash().String(),
		Branch:    head.Name().Short(),
	}

	log.Info().
		Str("commit", result.CommitSHA[:8]).
		Str("branch", result.Branch).
		Msg("clone complete")

	return result, nil
}

// FindLocalPythonFiles walks a checkout and returns up to maxFiles .py paths
// relative to root, skipping the same directories as the API walk
func FindLocalPythonFiles(root string, maxFiles int) ([]string, error) {
	if maxFiles <= 0 {
		maxFiles = defaultMaxPythonFiles
	}

	files := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= maxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
