package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aisdlc/copilot/pkg/model"
	"github.com/rs/zerolog/log"
)

const pySpace = `[\s\v\p{Z}\x{85}]`

var (
	// ErrNoValidTestCases means the reply parsed but no entry survived validation
	ErrNoValidTestCases = errors.New("no valid test cases in LLM reply")

	// non-ASCII identifiers and whitespace count
	testFuncPattern = regexp.MustCompile(`(?m)^(?:async` + pySpace + `+)?def` + pySpace + `+test_[\p{L}\p{N}_]+` + pySpace + `*\(`)
	conftestPattern = regexp.MustCompile("(?is)(?:#+\\s*conftest\\.py|# conftest\\.py).*?```python\\s*(.*?)```")
)

// InvalidJSONError wraps a JSON decoding failure of an LLM reply
type InvalidJSONError struct {
	Err error
}

func (e *InvalidJSONError) Error() string {
	return "invalid JSON in LLM reply: " + e.Err.Error()
}

func (e *InvalidJSONError) Unwrap() error {
	return e.Err
}

// CleanCodeResponse strips surrounding whitespace and a Markdown code fence
// from an LLM reply. Only the first line is dropped when the reply opens with
// a fence; the last line is dropped only when it is a bare fence.
func CleanCodeResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")[1:]
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		cleaned = strings.Join(lines, "\n")
	}

	return strings.TrimSpace(cleaned)
}

// StripJSONFence removes the first and last lines of a fenced reply
func StripJSONFence(response string) string {
	cleaned := strings.TrimSpace(response)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	if len(lines) <= 2 {
		return ""
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// CountTestFunctions counts top-level style test function definitions
func CountTestFunctions(code string) int {
	return len(testFuncPattern.FindAllStringIndex(code, -1))
}

// ExtractConftest returns the python block that follows a conftest.py heading
func ExtractConftest(response string) (string, bool) {
	if !strings.Contains(strings.ToLower(response), "conftest.py") {
		return "", false
	}

	m := conftestPattern.FindStringSubmatch(response)
	if m == nil {
		return "", false
	}

	code := strings.TrimSpace(m[1])
	if code == "" {
		return "", false
	}
	return code, true
}

// CountMarkdownCases counts "## TC" headings, falling back to requested when
// none are present.
func CountMarkdownCases(markdown string, requested int) int {
	if n := strings.Count(markdown, "## TC"); n > 0 {
		return n
	}
	return requested
}

// generatedCase mirrors one LLM test case entry. Pointers distinguish
// missing fields from empty ones.
type generatedCase struct {
	ID             *string  `json:"id"`
	Title          *string  `json:"title"`
	Description    string   `json:"description"`
	Preconditions  []string `json:"preconditions"`
	Steps          []string `json:"steps"`
	ExpectedResult string   `json:"expected_result"`
	Priority       *string  `json:"priority"`
	TestType       *string  `json:"test_type"`
}

// ParseTestCases decodes a JSON reply into validated test cases. Entries that
// fail to decode or carry unknown enum values are skipped. Missing fields get
// defaults, with ids numbered by position among accepted cases.
func ParseTestCases(response string) ([]model.TestCase, error) {
	cleaned := StripJSONFence(response)

	var envelope struct {
		TestCases []json.RawMessage `json:"test_cases"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		log.Error().Err(err).Str("raw", truncate(response, 500)).Msg("failed to parse LLM response as JSON")
		return nil, &InvalidJSONError{Err: err}
	}

	cases := make([]model.TestCase, 0, len(envelope.TestCases))
	for i, raw := range envelope.TestCases {
		var gc generatedCase
		if err := json.Unmarshal(raw, &gc); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping invalid test case")
			continue
		}

		tc := model.TestCase{
			ID:             deref(gc.ID, fmt.Sprintf("TC%03d", len(cases)+1)),
			Title:          deref(gc.Title, "Untitled"),
			Description:    gc.Description,
			Preconditions:  nonNil(gc.Preconditions),
			Steps:          nonNil(gc.Steps),
			ExpectedResult: gc.ExpectedResult,
			Priority:       model.Priority(deref(gc.Priority, string(model.PriorityMedium))),
			TestType:       model.TestType(deref(gc.TestType, string(model.TestTypeFunctional))),
		}
		if err := tc.Validate(); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping invalid test case")
			continue
		}

		cases = append(cases, tc)
	}

	if len(cases) == 0 {
		return nil, ErrNoValidTestCases
	}
	return cases, nil
}

// SaveCode writes <dir>/<module>.py and, when conftest is non-empty,
// <dir>/conftest.py. It returns the absolute path of the module file.
func SaveCode(dir, module, code, conftest string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filePath := filepath.Join(dir, module+".py")
	if err := os.WriteFile(filePath, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	log.Info().Str("path", filePath).Msg("saved pytest code")

	if conftest != "" {
		conftestPath := filepath.Join(dir, "conftest.py")
		if err := os.WriteFile(conftestPath, []byte(conftest), 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", conftestPath, err)
		}
		log.Info().Str("path", conftestPath).Msg("saved conftest.py")
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}
	return abs, nil
}

// ResolveOutputPath applies the output root restriction. With an empty root
// the path is returned unchanged. Otherwise relative paths are taken relative
// to root and any path outside root is rejected.
func ResolveOutputPath(root, path string) (string, error) {
	if root == "" || path == "" {
		return path, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output root: %w", err)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		var errs model.ValidationErrors
		errs.Add("output_path", "must be inside the configured output root")
		return "", errs
	}
	return target, nil
}

func deref(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// truncate keeps at most n runes of s
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
