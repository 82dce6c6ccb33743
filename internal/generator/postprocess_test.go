package generator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aisdlc/copilot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanCodeResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "  import pytest\n\ndef test_a():\n    pass  \n", "import pytest\n\ndef test_a():\n    pass"},
		{"python fence", "```python\nimport pytest\n```", "import pytest"},
		{"bare fence", "```\nx = 1\n```\n", "x = 1"},
		{"unterminated fence", "```python\nx = 1\ny = 2", "x = 1\ny = 2"},
		{"trailing text kept", "```python\nx = 1\n```\nDone!", "x = 1\n```\nDone!"},
		{"only fence", "```", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanCodeResponse(tt.input))
		})
	}
}

func TestStripJSONFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripJSONFence("  {\"a\":1}  "))
	assert.Equal(t, "{\"a\":1}", StripJSONFence("```json\n{\"a\":1}\n```"))
	// the last line is dropped whatever it holds
	assert.Equal(t, "{", StripJSONFence("```json\n{\n}"))
	assert.Equal(t, "", StripJSONFence("```json\n```"))
}

func TestCountTestFunctions(t *testing.T) {
	code := `import pytest

def test_one():
    pass

async def test_two(client):
    pass

def   test_three ():
    pass

def helper():
    pass

class TestX:
    def test_indented(self):
        pass

# def test_commented():
`
	assert.Equal(t, 3, CountTestFunctions(code))
	assert.Equal(t, 0, CountTestFunctions(""))
}

func TestCountTestFunctions_Unicode(t *testing.T) {
	code := "def test_café():\n    pass\n\ndef test_登录(client):\n    pass\n\ndef\u00a0test_nbsp():\n    pass\n"
	assert.Equal(t, 3, CountTestFunctions(code))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "café", truncate("café au lait", 4))
	assert.Equal(t, "登录", truncate("登录测试", 2))
}

func TestExtractConftest(t *testing.T) {
	reply := "```python\nimport pytest\n\ndef test_a():\n    pass\n```\n\n## conftest.py\n```python\nimport pytest\n\n@pytest.fixture\ndef db():\n    return {}\n```\n"

	code, ok := ExtractConftest(reply)
	require.True(t, ok)
	assert.Equal(t, "import pytest\n\n@pytest.fixture\ndef db():\n    return {}", code)

	code, ok = ExtractConftest("# CONFTEST.PY\n```python\nX = 1\n```")
	require.True(t, ok)
	assert.Equal(t, "X = 1", code)

	_, ok = ExtractConftest("def test_a():\n    pass")
	assert.False(t, ok)

	// mentioned but no fenced python block after a heading
	_, ok = ExtractConftest("Put shared fixtures in conftest.py.")
	assert.False(t, ok)
}

func TestCountMarkdownCases(t *testing.T) {
	md := "## TC001: Login\n...\n---\n## TC002: Logout\n...\n## TC003: Reset\n"
	assert.Equal(t, 3, CountMarkdownCases(md, 5))
	assert.Equal(t, 5, CountMarkdownCases("no headings here", 5))
}

func TestParseTestCases(t *testing.T) {
	reply := "```json\n" + `{
  "test_cases": [
    {"id": "TC001", "title": "Valid login", "description": "d", "preconditions": ["user exists"],
     "steps": ["open", "submit"], "expected_result": "dashboard", "priority": "high", "test_type": "functional"},
    {"title": "Bad priority", "priority": "urgent"},
    {"description": "only description"},
    "not an object",
    {"title": "Wrong types", "steps": "should be a list"},
    {"id": "CUSTOM-9", "title": "Security", "test_type": "security", "priority": "low"}
  ]
}` + "\n```"

	cases, err := ParseTestCases(reply)
	require.NoError(t, err)
	require.Len(t, cases, 3)

	assert.Equal(t, "TC001", cases[0].ID)
	assert.Equal(t, model.PriorityHigh, cases[0].Priority)
	assert.Equal(t, []string{"open", "submit"}, cases[0].Steps)

	// defaults, with the id numbered by accepted position
	assert.Equal(t, "TC002", cases[1].ID)
	assert.Equal(t, "Untitled", cases[1].Title)
	assert.Equal(t, "only description", cases[1].Description)
	assert.Equal(t, model.PriorityMedium, cases[1].Priority)
	assert.Equal(t, model.TestTypeFunctional, cases[1].TestType)
	assert.Equal(t, []string{}, cases[1].Steps)
	assert.Equal(t, []string{}, cases[1].Preconditions)

	assert.Equal(t, "CUSTOM-9", cases[2].ID)
	assert.Equal(t, model.TestTypeSecurity, cases[2].TestType)
}

func TestParseTestCases_InvalidJSON(t *testing.T) {
	_, err := ParseTestCases("Sure! Here are your test cases: ...")
	require.Error(t, err)

	var invalid *InvalidJSONError
	assert.True(t, errors.As(err, &invalid))
}

func TestParseTestCases_NoValid(t *testing.T) {
	_, err := ParseTestCases(`{"test_cases": [{"priority": "critical"}]}`)
	assert.ErrorIs(t, err, ErrNoValidTestCases)

	_, err = ParseTestCases(`{"cases": []}`)
	assert.ErrorIs(t, err, ErrNoValidTestCases)
}

func TestSaveCode(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tests")

	saved, err := SaveCode(dir, "test_login", "def test_a():\n    pass", "import pytest")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(saved))
	assert.Equal(t, filepath.Join(dir, "test_login.py"), saved)

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "def test_a():\n    pass", string(data))

	conftest, err := os.ReadFile(filepath.Join(dir, "conftest.py"))
	require.NoError(t, err)
	assert.Equal(t, "import pytest", string(conftest))
}

func TestSaveCode_NoConftest(t *testing.T) {
	dir := t.TempDir()

	_, err := SaveCode(dir, "test_x", "pass", "")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "conftest.py"))
	assert.True(t, os.IsNotExist(err))
}

func TestResolveOutputPath(t *testing.T) {
	root := t.TempDir()

	p, err := ResolveOutputPath("", "./tests")
	require.NoError(t, err)
	assert.Equal(t, "./tests", p)

	p, err = ResolveOutputPath(root, "")
	require.NoError(t, err)
	assert.Equal(t, "", p)

	p, err = ResolveOutputPath(root, "./tests")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "tests"), p)

	p, err = ResolveOutputPath(root, filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b"), p)

	_, err = ResolveOutputPath(root, "../outside")
	require.Error(t, err)
	var verrs model.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	_, err = ResolveOutputPath(root, "/etc")
	assert.Error(t, err)
}
