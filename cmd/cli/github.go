package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/aisdlc/copilot/internal/github"
	"github.com/aisdlc/copilot/internal/parser"
	"github.com/spf13/cobra"
)

// githubOptions are shared by every github subcommand
type githubOptions struct {
	token  string
	apiURL string
	branch string
}

func (o *githubOptions) client() *github.Client {
	token := o.token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	return github.NewClient(token, github.WithBaseURL(o.apiURL))
}

func githubCmd() *cobra.Command {
	opts := &githubOptions{}

	cmd := &cobra.Command{
		Use:   "github",
		Short: "Browse GitHub repositories for Python code",
		Long: `Inspect a GitHub repository through the REST API or a local clone.
Repositories can be given as https://github.com/owner/repo, git@github.com:owner/repo.git
or owner/repo.`,
	}

	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "GitHub token (defaults to GITHUB_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", github.DefaultBaseURL, "GitHub API base URL")
	cmd.PersistentFlags().StringVarP(&opts.branch, "branch", "b", "", "Branch or ref (default branch when empty)")
	cmd.PersistentFlags().MarkHidden("api-url")

	cmd.AddCommand(githubInfoCmd(opts))
	cmd.AddCommand(githubLsCmd(opts))
	cmd.AddCommand(githubCatCmd(opts))
	cmd.AddCommand(githubFindCmd(opts))
	cmd.AddCommand(githubSearchCmd(opts))
	cmd.AddCommand(githubCloneCmd(opts))

	return cmd
}

func githubInfoCmd(opts *githubOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <repo>",
		Short: "Show repository metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := github.ParseRepoURL(args[0])
			if err != nil {
				return err
			}

			info, err := opts.client().GetRepoInfo(cmd.Context(), owner, repo)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📦 %s/%s\n", info.Owner, info.Repo)
			fmt.Fprintf(out, "🌿 Default branch: %s\n", info.DefaultBranch)
			if info.Language != nil {
				fmt.Fprintf(out, "🔤 Language: %s\n", *info.Language)
			}
			if info.Description != nil {
				fmt.Fprintf(out, "📝 %s\n", *info.Description)
			}
			if info.Private {
				fmt.Fprintln(out, "🔒 Private")
			}
			return nil
		},
	}
}

func githubLsCmd(opts *githubOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <repo> [path]",
		Short: "List a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := github.ParseRepoURL(args[0])
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 2 {
				path = args[1]
			}

			items, err := opts.client().ListDirectory(cmd.Context(), owner, repo, path, opts.branch)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, item := range items {
				size := ""
				if item.Type == "file" {
					size = fmt.Sprintf("%d", item.Size)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", item.Type, size, item.Path)
			}
			return w.Flush()
		},
	}
}

func githubCatCmd(opts *githubOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <repo> <path>...",
		Short: "Print file contents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := github.ParseRepoURL(args[0])
			if err != nil {
				return err
			}

			client := opts.client()
			out := cmd.OutOrStdout()
			paths := args[1:]

			if len(paths) == 1 {
				file, err := client.GetFileContent(cmd.Context(), owner, repo, paths[0], opts.branch)
				if err != nil {
					return err
				}
				fmt.Fprint(out, file.Content)
				return nil
			}

			files, err := client.GetMultipleFiles(cmd.Context(), owner, repo, paths, opts.branch)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(out, "==> %s <==\n%s\n", f.Path, f.Content)
			}
			if len(files) < len(paths) {
				return fmt.Errorf("fetched %d of %d files", len(files), len(paths))
			}
			return nil
		},
	}
}

func githubFindCmd(opts *githubOptions) *cobra.Command {
	var maxFiles int

	cmd := &cobra.Command{
		Use:   "find <repo> [path]",
		Short: "Find Python files recursively",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := github.ParseRepoURL(args[0])
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 2 {
				path = args[1]
			}

			files, err := opts.client().FindPythonFiles(cmd.Context(), owner, repo, path, opts.branch, maxFiles)
			if err != nil {
				return err
			}

			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "🐍 %d Python files\n", len(files))
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxFiles, "max", "m", 50, "Maximum files to return")

	return cmd
}

func githubSearchCmd(opts *githubOptions) *cobra.Command {
	var (
		extension  string
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "search <repo> <query>",
		Short: "Search code in a repository (requires a token)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := github.ParseRepoURL(args[0])
			if err != nil {
				return err
			}

			results, err := opts.client().SearchCode(cmd.Context(), owner, repo, args[1], extension, maxResults)
			if err != nil {
				return err
			}

			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Path, r.HTMLURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&extension, "extension", "e", "py", "File extension filter")
	cmd.Flags().IntVarP(&maxResults, "max", "m", 10, "Maximum results")

	return cmd
}

func githubCloneCmd(opts *githubOptions) *cobra.Command {
	var (
		dir      string
		maxFiles int
		analyze  bool
	)

	cmd := &cobra.Command{
		Use:   "clone <repo>",
		Short: "Shallow-clone a repository and list its Python files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := github.ParseRepoURL(args[0])
			if err != nil {
				return err
			}

			token := opts.token
			if token == "" {
				token = os.Getenv("GITHUB_TOKEN")
			}

			result, err := github.NewCloner(dir, token).Clone(cmd.Context(), owner, repo, opts.branch)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📁 %s (%s @ %s)\n", result.Path, result.Branch, shortSHA(result.CommitSHA))

			files, err := github.FindLocalPythonFiles(result.Path, maxFiles)
			if err != nil {
				return fmt.Errorf("failed to scan checkout: %w", err)
			}
			fmt.Fprintf(out, "🐍 %d Python files\n\n", len(files))

			if !analyze {
				for _, f := range files {
					fmt.Fprintln(out, f)
				}
				return nil
			}
			return summarizeFiles(cmd.Context(), out, result.Path, files)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", filepath.Join(os.TempDir(), "copilot-repos"), "Directory to clone into")
	cmd.Flags().IntVarP(&maxFiles, "max", "m", 50, "Maximum Python files to list")
	cmd.Flags().BoolVarP(&analyze, "analyze", "a", false, "Parse each file and show functions, classes and tests")

	return cmd
}

// summarizeFiles prints a per-file outline of functions, classes and tests
func summarizeFiles(ctx context.Context, out io.Writer, root string, files []string) error {
	p := parser.NewParser()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tFUNCS\tCLASSES\tTESTS\tSTATUS")

	for _, f := range files {
		parsed, err := p.ParseFile(ctx, filepath.Join(root, filepath.FromSlash(f)))
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%v\n", f, err)
			continue
		}

		tests := 0
		for _, fn := range parsed.Functions {
			if fn.IsTest() {
				tests++
			}
		}

		status := "ok"
		if parsed.HasErrors {
			status = "syntax errors"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", f, len(parsed.Functions), len(parsed.Classes), tests, status)
	}

	return w.Flush()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
