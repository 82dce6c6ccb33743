package parser

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generatedModule = `"""Tests for login."""
import pytest
from unittest.mock import MagicMock, patch
import os.path as osp


@pytest.fixture
def user() -> dict:
    return {"email": "a@example.com", "password": "secret"}


@pytest.fixture(scope="module")
def client():
    return MagicMock()


@pytest.mark.smoke
def test_login_valid_credentials(client, user: dict) -> None:
    """User lands on dashboard."""
    assert client is not None, "client missing"


@pytest.mark.regression
@pytest.mark.parametrize("password", ["", "x"])
def test_login_invalid_password(client, password: str = "") -> None:
    assert password != "secret"


async def test_login_async(client):
    assert True


class TestLockout:
    def test_locks_after_five_failures(self, client):
        assert client

    def helper(self):
        return 1


def _private_helper():
    pass
`

func TestNewParser(t *testing.T) {
	p := NewParser()
	assert.NotNil(t, p)
	assert.NotNil(t, p.pyParser)
}

func TestIsPythonFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"app.py", true},
		{"/path/to/file.PY", true}, // Case insensitive
		{"main.go", false},
		{"README.md", false},
		{"Makefile", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsPythonFile(tt.path))
		})
	}
}

func TestParser_ParseContent(t *testing.T) {
	p := NewParser()
	parsed, err := p.ParseContent(context.Background(), "test_login.py", generatedModule)
	require.NoError(t, err)

	assert.False(t, parsed.HasErrors)

	names := make(map[string]Function)
	for _, fn := range parsed.Functions {
		names[fn.Name] = fn
	}

	require.Contains(t, names, "test_login_valid_credentials")
	fn := names["test_login_valid_credentials"]
	assert.Equal(t, 18, fn.StartLine)
	assert.True(t, fn.IsTest())
	assert.Equal(t, []string{"pytest.mark.smoke"}, fn.Decorators)
	require.Len(t, fn.Parameters, 2)
	assert.Equal(t, "client", fn.Parameters[0].Name)
	assert.Equal(t, "user", fn.Parameters[1].Name)
	assert.Equal(t, "dict", fn.Parameters[1].Type)

	invalid := names["test_login_invalid_password"]
	require.Len(t, invalid.Parameters, 2)
	assert.Equal(t, "password", invalid.Parameters[1].Name)
	assert.Equal(t, "str", invalid.Parameters[1].Type)
	assert.Equal(t, `""`, invalid.Parameters[1].Default)
	assert.Len(t, invalid.Decorators, 2)

	assert.True(t, names["test_login_async"].Async)
	assert.False(t, names["_private_helper"].Exported)
	assert.Equal(t, "TestLockout", names["test_locks_after_five_failures"].Class)

	require.Len(t, parsed.Classes, 1)
	cls := parsed.Classes[0]
	assert.Equal(t, "TestLockout", cls.Name)
	require.Len(t, cls.Methods, 2)
	assert.Equal(t, "client", cls.Methods[0].Parameters[0].Name)
	assert.Empty(t, cls.Methods[1].Parameters, "self is skipped")

	modules := make([]string, 0, len(parsed.Imports))
	for _, imp := range parsed.Imports {
		modules = append(modules, imp.Module)
	}
	assert.Equal(t, []string{"pytest", "unittest.mock", "os.path"}, modules)
	assert.Equal(t, []string{"MagicMock", "patch"}, parsed.Imports[1].Names)
	assert.Equal(t, "osp", parsed.Imports[2].Alias)
}

func TestParser_Analyze(t *testing.T) {
	p := NewParser()
	a, err := p.Analyze(context.Background(), generatedModule)
	require.NoError(t, err)

	assert.True(t, a.Valid)
	assert.Zero(t, a.ErrorLine)
	assert.Equal(t, []string{
		"test_login_valid_credentials",
		"test_login_invalid_password",
		"test_login_async",
		"TestLockout::test_locks_after_five_failures",
	}, a.TestFunctions)
	assert.Equal(t, []string{"user", "client"}, a.Fixtures)
	assert.Equal(t, []string{"parametrize", "regression", "smoke"}, a.Markers)
	assert.Contains(t, a.Imports, "pytest")
}

func TestParser_Analyze_SyntaxError(t *testing.T) {
	p := NewParser()
	code := "import pytest\n\ndef test_broken(:\n    assert True\n"

	a, err := p.Analyze(context.Background(), code)
	require.NoError(t, err)

	assert.False(t, a.Valid)
	assert.Greater(t, a.ErrorLine, 0)
}

func TestParser_Analyze_Empty(t *testing.T) {
	p := NewParser()
	a, err := p.Analyze(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, a.Valid)
	assert.Empty(t, a.TestFunctions)
	assert.NotNil(t, a.TestFunctions)
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_sample.py")
	require.NoError(t, os.WriteFile(path, []byte("def test_one():\n    assert 1\n"), 0644))

	p := NewParser()
	parsed, err := p.ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, parsed.Functions, 1)
	assert.Equal(t, path+":1:test_one", parsed.Functions[0].ID)

	_, err = p.ParseFile(context.Background(), filepath.Join(dir, "main.go"))
	assert.Error(t, err)

	_, err = p.ParseFile(context.Background(), filepath.Join(dir, "missing.py"))
	assert.Error(t, err)
}

func TestParser_ConcurrentAnalyze(t *testing.T) {
	p := NewParser()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := p.Analyze(context.Background(), generatedModule)
			assert.NoError(t, err)
			assert.Len(t, a.TestFunctions, 4)
		}()
	}
	wg.Wait()
}

func TestMarkerName(t *testing.T) {
	assert.Equal(t, "smoke", markerName("pytest.mark.smoke"))
	assert.Equal(t, "parametrize", markerName(`pytest.mark.parametrize("x", [1])`))
	assert.Equal(t, "", markerName("pytest.fixture"))
	assert.True(t, isFixtureDecorator("pytest.fixture(scope=\"module\")"))
	assert.False(t, isFixtureDecorator("pytest.mark.smoke"))
}
