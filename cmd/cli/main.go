package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aisdlc/copilot/internal/config"
	"github.com/aisdlc/copilot/internal/prompts"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = config.AppVersion

func main() {
	config.LoadDotEnv()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		debug      bool
		projectDir string
	)

	cmd := &cobra.Command{
		Use:     "copilot",
		Short:   "AI SDLC Co-Pilot - test cases and pytest code from requirements",
		Long:    `Generate QA test cases and runnable pytest modules from requirements using Groq or Gemini.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if debug {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&projectDir, "project-dir", ".", "Directory holding "+config.ProjectFileName)

	cmd.AddCommand(testcasesCmd())
	cmd.AddCommand(pytestCmd())
	cmd.AddCommand(githubCmd())
	cmd.AddCommand(personasCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(initCmd())

	return cmd
}

func personasCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "personas",
		Short: "List the personas available for test case generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := prompts.DefaultCatalog()
			if file == "" {
				file = os.Getenv("PERSONAS_FILE")
			}
			if file != "" {
				c, err := prompts.LoadCatalog(file)
				if err != nil {
					return fmt.Errorf("failed to load personas: %w", err)
				}
				catalog = c
			}

			out := cmd.OutOrStdout()
			for _, p := range catalog.List() {
				marker := " "
				if p.Key == prompts.DefaultPersona {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-22s %s\n", marker, p.Key, p.Name)
				if p.Description != "" {
					fmt.Fprintf(out, "  %-22s %s\n", "", p.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML persona catalog (defaults to PERSONAS_FILE)")

	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n\n", config.AppName, config.AppVersion)
			fmt.Fprintf(out, "Environment:   %s (debug=%t)\n", cfg.Env, cfg.Debug)
			fmt.Fprintf(out, "Port:          %d\n", cfg.Port)
			fmt.Fprintf(out, "CORS origins:  %s\n", strings.Join(cfg.CORSOrigins, ", "))
			fmt.Fprintf(out, "Output root:   %s\n", orNone(cfg.OutputRoot))
			fmt.Fprintf(out, "Database:      %s\n", orNone(maskConnectionString(cfg.DatabaseURL)))
			fmt.Fprintf(out, "Redis:         %s\n", orNone(maskConnectionString(cfg.RedisURL)))
			fmt.Fprintf(out, "NATS:          %s\n", orNone(maskConnectionString(cfg.NATSURL)))
			fmt.Fprintf(out, "GitHub token:  %s\n", setOrNot(cfg.GitHubToken))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "LLM primary:   %s\n", cfg.LLM.PrimaryProvider)
			fmt.Fprintf(out, "Groq:          %s (%s)\n", setOrNot(cfg.LLM.GroqKey), cfg.LLM.GroqModel)
			fmt.Fprintf(out, "Gemini:        %s (%s)\n", setOrNot(cfg.LLM.GeminiKey), cfg.LLM.GeminiModel)
			fmt.Fprintf(out, "Cache:         %s (ttl %s)\n", orNone(cfg.LLM.CacheType), cfg.LLM.CacheTTL)

			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "\n⚠️  %v\n", err)
			}
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a " + config.ProjectFileName + " with default generation settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("project-dir")
			path := filepath.Join(dir, config.ProjectFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.SaveProjectConfig(dir, config.DefaultProjectConfig()); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

// maskConnectionString hides the password in a connection URL
func maskConnectionString(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if _, ok := u.User.Password(); !ok {
		return s
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return strings.Replace(u.String(), "%2A%2A%2A%2A", "****", 1)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func setOrNot(s string) string {
	if s == "" {
		return "not set"
	}
	return "set"
}
