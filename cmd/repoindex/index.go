package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/repoindex/internal/assembler"
	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/indexer"
	"github.com/fyrsmithlabs/repoindex/internal/source"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// sourceFlags selects where repository files come from. Exactly one of
// Dir, Git and GitHub is set.
type sourceFlags struct {
	Dir    string
	Git    string
	GitHub string
	Ref    string
	PR     int
}

var errSourceFlags = errors.New("invalid source flags")

func (f sourceFlags) validate() error {
	set := 0
	for _, v := range []string{f.Dir, f.Git, f.GitHub} {
		if v != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return fmt.Errorf("%w: one of --dir, --git or --github is required", errSourceFlags)
	case set > 1:
		return fmt.Errorf("%w: --dir, --git and --github are mutually exclusive", errSourceFlags)
	case f.PR < 0:
		return fmt.Errorf("%w: --pr must be positive", errSourceFlags)
	case f.PR > 0 && f.GitHub == "":
		return fmt.Errorf("%w: --pr requires --github", errSourceFlags)
	case f.PR > 0 && f.Ref != "":
		return fmt.Errorf("%w: --pr and --ref are mutually exclusive", errSourceFlags)
	case f.Ref != "" && f.Dir != "":
		return fmt.Errorf("%w: --ref does not apply to --dir", errSourceFlags)
	}
	if f.GitHub != "" {
		if _, _, err := splitOwnerRepo(f.GitHub); err != nil {
			return err
		}
	}
	return nil
}

// splitOwnerRepo parses "owner/name".
func splitOwnerRepo(s string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: --github wants owner/name, got %q", errSourceFlags, s)
	}
	return owner, name, nil
}

// repoName returns the collection key used when --repo is not given.
func (f sourceFlags) repoName() string {
	switch {
	case f.GitHub != "":
		return f.GitHub
	case f.Git != "":
		base := path.Base(strings.TrimRight(f.Git, "/"))
		return strings.TrimSuffix(base, ".git")
	case f.Dir != "":
		if abs, err := filepath.Abs(f.Dir); err == nil {
			return filepath.Base(abs)
		}
		return filepath.Base(f.Dir)
	}
	return ""
}

// build constructs the selected source. Remote listings only fetch paths
// the assembler would keep.
func (f sourceFlags) build(cmd *cobra.Command, cfg *config.Config, asm *assembler.Assembler, logger *zap.Logger) source.Source {
	switch {
	case f.Dir != "":
		return &source.Dir{Root: f.Dir, Logger: logger}
	case f.Git != "":
		return &source.Git{URL: f.Git, Ref: f.Ref, Depth: 1, Token: cfg.GitHub.Token, Logger: logger}
	}

	owner, name, _ := splitOwnerRepo(f.GitHub)
	client := source.NewGitHubClient(cmd.Context(), cfg.GitHub.Token)
	if f.PR > 0 {
		return &source.PullRequest{
			Client:  client,
			Owner:   owner,
			Repo:    name,
			Number:  f.PR,
			Include: asm.AllowsPath,
			Logger:  logger,
		}
	}
	return &source.GitHub{
		Client:  client,
		Owner:   owner,
		Repo:    name,
		Ref:     f.Ref,
		Include: asm.AllowsPath,
		Logger:  logger,
	}
}

var (
	indexRepo     string
	indexProvider string
	indexSource   sourceFlags
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk, embed and store a repository",
	Long: `Read a repository, split its source files into chunks, embed every chunk
with the given provider and write the vectors to the repository's collection.

A collection keeps the dimension and provider of its first write; indexing
the same repository with another provider or model dimension fails.

Examples:
  repoindex index --provider local --dir .
  repoindex index --provider openai --git https://github.com/acme/widgets.git --ref main
  repoindex index --provider gemini --github acme/widgets --pr 42 --repo acme/widgets`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.StringVar(&indexRepo, "repo", "", "repository name used as the collection key (default derived from the source)")
	f.StringVar(&indexProvider, "provider", "", "embedding provider: local, openai, gemini or claude (required)")
	f.StringVar(&indexSource.Dir, "dir", "", "index a local directory")
	f.StringVar(&indexSource.Git, "git", "", "clone and index a git URL")
	f.StringVar(&indexSource.GitHub, "github", "", "index owner/name through the GitHub API")
	f.StringVar(&indexSource.Ref, "ref", "", "branch, tag or commit for --git and --github")
	f.IntVar(&indexSource.PR, "pr", 0, "with --github, index only the files changed by this pull request")
	_ = indexCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	provider, err := parseProvider(indexProvider)
	if err != nil {
		return err
	}
	if err := indexSource.validate(); err != nil {
		return err
	}
	repo := indexRepo
	if repo == "" {
		repo = indexSource.repoName()
	}

	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	asm, err := a.assembler()
	if err != nil {
		return err
	}
	gw, err := a.gateway()
	if err != nil {
		return err
	}
	defer gw.Close()
	store, err := a.store()
	if err != nil {
		return err
	}

	ix, err := indexer.New(indexer.Config{
		Assembler:  asm,
		Embedder:   gw,
		Store:      store,
		StoreBatch: a.cfg.Indexer.StoreBatch,
		Logger:     a.logger.Underlying().Named("indexer"),
	})
	if err != nil {
		return err
	}

	src := indexSource.build(cmd, a.cfg, asm, a.logger.Underlying().Named("source"))
	report, err := ix.Index(ctx, repo, src, provider)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
