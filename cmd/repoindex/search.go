package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/repoindex/internal/indexer"
	"github.com/fyrsmithlabs/repoindex/internal/reranker"
	"github.com/spf13/cobra"
)

var (
	searchRepo     string
	searchProvider string
	searchTopK     int
	searchJSON     bool
	searchRerank   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Find the chunks of a repository nearest to a query",
	Long: `Embed the query with the provider the repository was indexed with and
print the nearest chunks.

Examples:
  repoindex search --repo acme/widgets --provider local "parse config file"
  repoindex search --repo acme/widgets --provider openai --top-k 10 --json retry loop`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchRepo, "repo", "", "repository name (required)")
	f.StringVar(&searchProvider, "provider", "", "embedding provider: local, openai, gemini or claude (required)")
	f.IntVar(&searchTopK, "top-k", 5, "number of results")
	f.BoolVar(&searchJSON, "json", false, "print results as JSON")
	f.BoolVar(&searchRerank, "rerank", false, "reorder results by query term overlap")
	_ = searchCmd.MarkFlagRequired("repo")
	_ = searchCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	provider, err := parseProvider(searchProvider)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	gw, err := a.gateway()
	if err != nil {
		return err
	}
	defer gw.Close()
	store, err := a.store()
	if err != nil {
		return err
	}
	asm, err := a.assembler()
	if err != nil {
		return err
	}

	cfg := indexer.Config{
		Assembler: asm,
		Embedder:  gw,
		Store:     store,
		Logger:    a.logger.Underlying().Named("indexer"),
	}
	if searchRerank {
		cfg.Reranker = reranker.Overlap{}
	}
	ix, err := indexer.New(cfg)
	if err != nil {
		return err
	}

	res, err := ix.Search(ctx, searchRepo, strings.Join(args, " "), provider, searchTopK)
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printHits(cmd.OutOrStdout(), res)
	return nil
}

// previewLines is how many lines of each hit printHits shows.
const previewLines = 3

func printHits(w io.Writer, res *indexer.SearchResult) {
	if len(res.Hits) == 0 {
		fmt.Fprintf(w, "no results in %s\n", res.Repo)
		return
	}
	for i, h := range res.Hits {
		fmt.Fprintf(w, "%d. %.4f  %s#%d  (chunk %d)\n", i+1, h.Score, h.FilePath, h.LocalIndex, h.ChunkID)
		lines := strings.Split(strings.TrimSpace(h.Content), "\n")
		if len(lines) > previewLines {
			lines = append(lines[:previewLines], "...")
		}
		for _, l := range lines {
			fmt.Fprintf(w, "     %s\n", l)
		}
	}
}
