package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the per-project defaults file read by the CLI
const ProjectFileName = ".copilot.yaml"

// ProjectConfig represents a .copilot.yaml file in a repository
type ProjectConfig struct {
	Version string `yaml:"version"`

	// Context sent with every requirement (tech stack, constraints)
	Context string `yaml:"context,omitempty"`

	// Test case generation settings
	TestCases TestCaseDefaults `yaml:"testcases"`

	// Pytest generation settings
	PyTest PyTestDefaults `yaml:"pytest"`
}

// TestCaseDefaults holds test case generation preferences
type TestCaseDefaults struct {
	Persona   string `yaml:"persona,omitempty"`
	NumCases  int    `yaml:"num_cases,omitempty"`
	Format    string `yaml:"format,omitempty"`
	EdgeCases *bool  `yaml:"edge_cases,omitempty"`
}

// PyTestDefaults holds pytest generation preferences
type PyTestDefaults struct {
	ModuleName string `yaml:"module_name,omitempty"`
	OutputDir  string `yaml:"output_dir,omitempty"`
	NumTests   int    `yaml:"num_tests,omitempty"`
	Fixtures   *bool  `yaml:"fixtures,omitempty"`
	Conftest   *bool  `yaml:"conftest,omitempty"`
}

// DefaultProjectConfig returns the defaults used when no file exists
func DefaultProjectConfig() *ProjectConfig {
	yes, no := true, false
	return &ProjectConfig{
		Version: "1.0",
		TestCases: TestCaseDefaults{
			Persona:   "qa_engineer",
			NumCases:  5,
			Format:    "json",
			EdgeCases: &yes,
		},
		PyTest: PyTestDefaults{
			ModuleName: "test_generated",
			OutputDir:  "./tests",
			NumTests:   5,
			Fixtures:   &yes,
			Conftest:   &no,
		},
	}
}

// LoadProjectConfig loads .copilot.yaml (or .copilot.yml) from dir. A missing
// file yields the defaults.
func LoadProjectConfig(dir string) (*ProjectConfig, error) {
	configPath := filepath.Join(dir, ProjectFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join(dir, ".copilot.yml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultProjectConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveProjectConfig writes cfg to .copilot.yaml in dir
func SaveProjectConfig(dir string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, ProjectFileName), data, 0644)
}

// Merge applies overrides from another config
func (c *ProjectConfig) Merge(other *ProjectConfig) {
	if other == nil {
		return
	}

	if other.Context != "" {
		c.Context = other.Context
	}

	if other.TestCases.Persona != "" {
		c.TestCases.Persona = other.TestCases.Persona
	}
	if other.TestCases.NumCases != 0 {
		c.TestCases.NumCases = other.TestCases.NumCases
	}
	if other.TestCases.Format != "" {
		c.TestCases.Format = other.TestCases.Format
	}
	if other.TestCases.EdgeCases != nil {
		c.TestCases.EdgeCases = other.TestCases.EdgeCases
	}

	if other.PyTest.ModuleName != "" {
		c.PyTest.ModuleName = other.PyTest.ModuleName
	}
	if other.PyTest.OutputDir != "" {
		c.PyTest.OutputDir = other.PyTest.OutputDir
	}
	if other.PyTest.NumTests != 0 {
		c.PyTest.NumTests = other.PyTest.NumTests
	}
	if other.PyTest.Fixtures != nil {
		c.PyTest.Fixtures = other.PyTest.Fixtures
	}
	if other.PyTest.Conftest != nil {
		c.PyTest.Conftest = other.PyTest.Conftest
	}
}
