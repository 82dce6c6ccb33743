package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aisdlc/copilot/internal/config"
	"github.com/aisdlc/copilot/internal/generator"
	"github.com/aisdlc/copilot/internal/llm"
	"github.com/aisdlc/copilot/internal/parser"
	"github.com/aisdlc/copilot/internal/prompts"
	"github.com/aisdlc/copilot/pkg/model"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// newGenerator builds the LLM used by generation commands. Tests replace it.
var newGenerator = func(ctx context.Context, cfg *config.Config) (llm.Generator, error) {
	router, err := llm.NewRouter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM router: %w", err)
	}
	if err := router.HealthCheck(); err != nil {
		return nil, fmt.Errorf("LLM not available: %w", err)
	}

	if cfg.LLM.CacheType != "memory" && cfg.LLM.CacheType != "redis" {
		return router, nil
	}
	cache, err := llm.CreateCache(ctx, cfg.LLM.CacheType, cfg.RedisURL, cfg.LLM.CacheSize, cfg.LLM.CacheTTL)
	if err != nil {
		log.Warn().Err(err).Msg("LLM cache unavailable, continuing without it")
		return router, nil
	}
	return llm.NewCachedRouter(router, cache, cfg.LLM.CacheTTL), nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadProject reads .copilot.yaml from --project-dir
func loadProject(cmd *cobra.Command) (*config.ProjectConfig, error) {
	dir, err := cmd.Flags().GetString("project-dir")
	if err != nil || dir == "" {
		dir = "."
	}
	proj, err := config.LoadProjectConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	return proj, nil
}

func testcasesCmd() *cobra.Command {
	req := model.DefaultTestCaseRequest()
	var (
		format     string
		noEdge     bool
		personaDir string
	)

	cmd := &cobra.Command{
		Use:   "testcases",
		Short: "Generate QA test cases for a requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			proj, err := loadProject(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("context") {
				req.Context = proj.Context
			}
			if !flags.Changed("persona") && proj.TestCases.Persona != "" {
				req.Persona = proj.TestCases.Persona
			}
			if !flags.Changed("num") && proj.TestCases.NumCases > 0 {
				req.NumCases = proj.TestCases.NumCases
			}
			if !flags.Changed("format") && proj.TestCases.Format != "" {
				format = proj.TestCases.Format
			}
			if !flags.Changed("no-edge-cases") && proj.TestCases.EdgeCases != nil {
				noEdge = !*proj.TestCases.EdgeCases
			}

			gen, err := newGenerator(ctx, cfg)
			if err != nil {
				return err
			}

			personas := prompts.DefaultCatalog()
			if personaDir != "" {
				if personas, err = prompts.LoadCatalog(personaDir); err != nil {
					return fmt.Errorf("failed to load personas: %w", err)
				}
			}

			req.OutputFormat = model.OutputFormat(format)
			req.IncludeEdgeCases = !noEdge

			result, err := generator.NewTestCaseGenerator(gen, personas).Generate(ctx, req)
			if err != nil {
				return fmt.Errorf("%s", generator.TestCaseErrorDetail(err))
			}

			out := cmd.OutOrStdout()
			if result.Markdown != nil {
				fmt.Fprintln(out, result.Markdown.Markdown)
				fmt.Fprintf(cmd.ErrOrStderr(), "\n✅ %d test cases via %s\n", result.Markdown.TotalCount, result.Meta.Provider)
				return nil
			}

			if err := writeJSON(out, result.Cases); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\n✅ %d test cases via %s\n", result.Cases.TotalCount, result.Meta.Provider)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Requirement, "requirement", "r", "", "Requirement or user story")
	cmd.Flags().StringVarP(&req.Context, "context", "c", "", "Additional system context")
	cmd.Flags().IntVarP(&req.NumCases, "num", "n", model.DefaultNumCases, "Number of test cases (1-20)")
	cmd.Flags().StringVarP(&format, "format", "f", string(model.FormatJSON), "Output format: json or markdown")
	cmd.Flags().StringVarP(&req.Persona, "persona", "p", model.DefaultPersona, "Persona key (see 'copilot personas')")
	cmd.Flags().StringVar(&req.SystemPrompt, "system-prompt", "", "Override the persona system prompt")
	cmd.Flags().BoolVar(&noEdge, "no-edge-cases", false, "Skip edge and negative cases")
	cmd.Flags().StringVar(&personaDir, "personas-file", os.Getenv("PERSONAS_FILE"), "YAML persona catalog")
	cmd.MarkFlagRequired("requirement")

	return cmd
}

func pytestCmd() *cobra.Command {
	var (
		casesFile   string
		requirement string
		sysContext  string
		numTests    int
		module      string
		output      string
		fixtures    bool
		conftest    bool
	)

	cmd := &cobra.Command{
		Use:   "pytest",
		Short: "Generate a pytest module from test cases or a requirement",
		Long: `Generate a runnable pytest module.

Use --cases with a JSON file holding test cases (an array, or an object with
a "test_cases" array such as the output of 'copilot testcases'), or
--requirement to go straight from a requirement to code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (casesFile == "") == (requirement == "") {
				return fmt.Errorf("exactly one of --cases or --requirement is required")
			}

			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			proj, err := loadProject(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("context") {
				sysContext = proj.Context
			}
			if !flags.Changed("module") && proj.PyTest.ModuleName != "" {
				module = proj.PyTest.ModuleName
			}
			if !flags.Changed("output") && proj.PyTest.OutputDir != "" {
				output = proj.PyTest.OutputDir
			}
			if !flags.Changed("num") && proj.PyTest.NumTests > 0 {
				numTests = proj.PyTest.NumTests
			}
			if !flags.Changed("fixtures") && proj.PyTest.Fixtures != nil {
				fixtures = *proj.PyTest.Fixtures
			}
			if !flags.Changed("conftest") && proj.PyTest.Conftest != nil {
				conftest = *proj.PyTest.Conftest
			}

			gen, err := newGenerator(ctx, cfg)
			if err != nil {
				return err
			}
			pg := generator.NewPyTestGenerator(gen, parser.NewParser(), cfg.OutputRoot)

			var result *generator.PyTestResult
			if casesFile != "" {
				cases, err := readTestCases(casesFile)
				if err != nil {
					return err
				}
				req := model.DefaultPyTestRequest()
				req.TestCases = cases
				req.ModuleName = module
				req.OutputPath = output
				req.IncludeFixtures = fixtures
				req.IncludeConftest = conftest
				result, err = pg.FromTestCases(ctx, req)
				if err != nil {
					return fmt.Errorf("%s", generator.PyTestErrorDetail(err))
				}
			} else {
				req := model.DefaultPyTestFromRequirementRequest()
				req.Requirement = requirement
				req.Context = sysContext
				req.NumTests = numTests
				req.ModuleName = module
				req.OutputPath = output
				result, err = pg.FromRequirement(ctx, req)
				if err != nil {
					return fmt.Errorf("%s", generator.PyTestErrorDetail(err))
				}
			}

			printPyTest(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&casesFile, "cases", "", "JSON file with test cases")
	cmd.Flags().StringVarP(&requirement, "requirement", "r", "", "Requirement to generate tests from")
	cmd.Flags().StringVarP(&sysContext, "context", "c", "", "Additional system context (with --requirement)")
	cmd.Flags().IntVarP(&numTests, "num", "n", model.DefaultNumTests, "Approximate number of tests (1-15, with --requirement)")
	cmd.Flags().StringVarP(&module, "module", "m", model.DefaultModuleName, "Python module name")
	cmd.Flags().StringVarP(&output, "output", "o", model.DefaultOutputPath, "Directory to save into; empty prints only")
	cmd.Flags().BoolVar(&fixtures, "fixtures", true, "Ask for pytest fixtures")
	cmd.Flags().BoolVar(&conftest, "conftest", false, "Also generate conftest.py (with --cases)")

	return cmd
}

func printPyTest(cmd *cobra.Command, result *generator.PyTestResult) {
	resp := result.Response
	status := cmd.ErrOrStderr()

	if resp.SavedTo == nil {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Code)
		if resp.ConftestCode != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\n# conftest.py\n%s\n", *resp.ConftestCode)
		}
	} else {
		fmt.Fprintf(status, "💾 Saved to %s\n", *resp.SavedTo)
	}

	fmt.Fprintf(status, "✅ %d tests in %s via %s\n", resp.TestCount, resp.ModuleName, result.Meta.Provider)
	if resp.SyntaxValid != nil && !*resp.SyntaxValid {
		fmt.Fprintln(status, "⚠️  generated code has syntax errors")
	}
}

// readTestCases accepts a bare array or an object with a test_cases array
func readTestCases(path string) ([]model.TestCaseInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cases []model.TestCaseInput
	if err := json.Unmarshal(data, &cases); err == nil {
		return cases, nil
	}

	var wrapped struct {
		TestCases []model.TestCaseInput `json:"test_cases"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return wrapped.TestCases, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
