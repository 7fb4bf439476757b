package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/repoindex/internal/config"
	"github.com/fyrsmithlabs/repoindex/internal/embeddings"
	"github.com/fyrsmithlabs/repoindex/internal/indexer"
	"github.com/fyrsmithlabs/repoindex/internal/source"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	base := []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "--log-level", "error"}
	rootCmd.SetArgs(append(base, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSourceFlagsValidate(t *testing.T) {
	tests := []struct {
		name    string
		flags   sourceFlags
		wantErr string
	}{
		{name: "dir", flags: sourceFlags{Dir: "."}},
		{name: "git with ref", flags: sourceFlags{Git: "https://example.com/a.git", Ref: "main"}},
		{name: "github", flags: sourceFlags{GitHub: "acme/widgets"}},
		{name: "github pr", flags: sourceFlags{GitHub: "acme/widgets", PR: 7}},
		{name: "none", flags: sourceFlags{}, wantErr: "is required"},
		{name: "two sources", flags: sourceFlags{Dir: ".", Git: "x"}, wantErr: "mutually exclusive"},
		{name: "pr without github", flags: sourceFlags{Git: "x", PR: 3}, wantErr: "--pr requires --github"},
		{name: "pr with ref", flags: sourceFlags{GitHub: "a/b", PR: 3, Ref: "main"}, wantErr: "--pr and --ref"},
		{name: "negative pr", flags: sourceFlags{GitHub: "a/b", PR: -1}, wantErr: "positive"},
		{name: "ref with dir", flags: sourceFlags{Dir: ".", Ref: "main"}, wantErr: "does not apply"},
		{name: "bad github", flags: sourceFlags{GitHub: "widgets"}, wantErr: "owner/name"},
		{name: "github too deep", flags: sourceFlags{GitHub: "a/b/c"}, wantErr: "owner/name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errSourceFlags)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSourceFlagsRepoName(t *testing.T) {
	assert.Equal(t, "acme/widgets", sourceFlags{GitHub: "acme/widgets"}.repoName())
	assert.Equal(t, "widgets", sourceFlags{Git: "https://github.com/acme/widgets.git"}.repoName())
	assert.Equal(t, "widgets", sourceFlags{Git: "https://github.com/acme/widgets/"}.repoName())

	dir := filepath.Join(t.TempDir(), "gadgets")
	assert.Equal(t, "gadgets", sourceFlags{Dir: dir}.repoName())
	assert.Empty(t, sourceFlags{}.repoName())
}

func TestSourceFlagsBuild(t *testing.T) {
	a := testApp(t)
	asm, err := a.assembler()
	require.NoError(t, err)
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	src := sourceFlags{Dir: "."}.build(cmd, a.cfg, asm, nil)
	assert.IsType(t, &source.Dir{}, src)

	src = sourceFlags{Git: "https://example.com/acme/widgets.git", Ref: "dev"}.build(cmd, a.cfg, asm, nil)
	g, ok := src.(*source.Git)
	require.True(t, ok)
	assert.Equal(t, "dev", g.Ref)
	assert.Equal(t, 1, g.Depth)

	src = sourceFlags{GitHub: "acme/widgets", Ref: "v1"}.build(cmd, a.cfg, asm, nil)
	gh, ok := src.(*source.GitHub)
	require.True(t, ok)
	assert.Equal(t, "acme", gh.Owner)
	assert.Equal(t, "widgets", gh.Repo)
	assert.Equal(t, "v1", gh.Ref)
	assert.True(t, gh.Include("src/main.go"))
	assert.False(t, gh.Include("docs/logo.png"))

	src = sourceFlags{GitHub: "acme/widgets", PR: 12}.build(cmd, a.cfg, asm, nil)
	pr, ok := src.(*source.PullRequest)
	require.True(t, ok)
	assert.Equal(t, 12, pr.Number)
}

func testApp(t *testing.T) *app {
	t.Helper()
	return &app{cfg: config.Default()}
}

func TestParseProvider(t *testing.T) {
	p, err := parseProvider("Claude")
	require.NoError(t, err)
	assert.Equal(t, embeddings.ProviderClaude, p)

	_, err = parseProvider("")
	assert.ErrorIs(t, err, embeddings.ErrProviderRequired)

	_, err = parseProvider("cohere")
	assert.ErrorIs(t, err, embeddings.ErrUnsupportedProvider)
	assert.Contains(t, err.Error(), "--provider")
}

func TestProviderFlagsRequired(t *testing.T) {
	for _, cmd := range []*cobra.Command{indexCmd, searchCmd, embedCmd} {
		f := cmd.Flags().Lookup("provider")
		require.NotNil(t, f, cmd.Name())
		assert.Equal(t, "", f.DefValue, cmd.Name())
		assert.Equal(t, []string{"true"}, f.Annotations[cobra.BashCompOneRequiredFlag], cmd.Name())
	}
}

func TestApplyLogOverrides(t *testing.T) {
	cfg := config.Default()
	applyLogOverrides(cfg, "", "")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	applyLogOverrides(cfg, "debug", "console")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestPrintHits(t *testing.T) {
	var buf bytes.Buffer
	printHits(&buf, &indexer.SearchResult{Repo: "acme/widgets"})
	assert.Equal(t, "no results in acme/widgets\n", buf.String())

	buf.Reset()
	printHits(&buf, &indexer.SearchResult{
		Repo: "acme/widgets",
		Hits: []vectorstore.Hit{{
			ID:         "acme/widgets::4",
			ChunkID:    4,
			Score:      0.91234,
			FilePath:   "pkg/a.go",
			LocalIndex: 1,
			Content:    "l1\nl2\nl3\nl4\nl5",
		}},
	})
	out := buf.String()
	assert.Contains(t, out, "1. 0.9123  pkg/a.go#1  (chunk 4)")
	assert.Contains(t, out, "     l3\n")
	assert.NotContains(t, out, "l4")
	assert.Contains(t, out, "     ...\n")
}

func TestPrintCollections(t *testing.T) {
	var buf bytes.Buffer
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, printCollections(&buf, []vectorstore.CollectionInfo{{
		Repo:         "acme/widgets",
		Collection:   "repo_acme_widgets",
		EmbeddingDim: 384,
		Provider:     "local",
		DocCount:     12,
		UpdatedAt:    updated,
	}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "REPO"))
	assert.Equal(t, []string{"acme/widgets", "repo_acme_widgets", "384", "local", "12", "2026-01-02T03:04:05Z"}, strings.Fields(lines[1]))
}

func TestChunkCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.py")
	require.NoError(t, os.WriteFile(path, []byte("def f():\r\n    return 1\r\n"), 0o644))

	out, err := execute(t, "chunk", "--strategy", "window", path)
	require.NoError(t, err)

	var seg struct {
		LocalIndex int    `json:"local_index"`
		Chars      int    `json:"chars"`
		Content    string `json:"content"`
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &seg))
	assert.Equal(t, 0, seg.LocalIndex)
	assert.Equal(t, "def f():\n    return 1", seg.Content)
	assert.Equal(t, len(seg.Content), seg.Chars)
}

func TestChunkCommandErrors(t *testing.T) {
	_, err := execute(t, "chunk", "--strategy", "window", filepath.Join(t.TempDir(), "missing.py"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "a.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
	_, err = execute(t, "chunk", "--strategy", "sentences", path)
	assert.Error(t, err)
}

func TestCollectionsCommand(t *testing.T) {
	t.Setenv("VECTORSTORE_PATH", t.TempDir())

	out, err := execute(t, "collections", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = vectorstore.Shared()
	assert.ErrorIs(t, err, vectorstore.ErrNotInitialized, "store is shut down on exit")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "repoindex dev"))
}
