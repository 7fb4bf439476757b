package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
	}{
		{"empty line", "", ""},
		{"whitespace only", "   ", ""},
		{"comment", "# this is a comment", ""},
		{"negation kept", "!important.txt", "!important.txt"},
		{"trailing space", "*.log  ", "*.log"},
		{"crlf", "dist/\r", "dist/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLine(tt.line))
		})
	}
}

func TestParseProject(t *testing.T) {
	tmpDir := t.TempDir()

	gitignore := "# Build outputs\ndist/\n\n*.pyc\n*.log\n!keep.log\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte(gitignore), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".repoindexignore"), []byte("fixtures/\n*.pyc\n"), 0644))

	matcher, err := NewParser(DefaultIgnoreFiles, []string{"node_modules"}).ParseProject(tmpDir)
	require.NoError(t, err)

	tests := []struct {
		path    string
		isDir   bool
		ignored bool
	}{
		{"dist/app.js", false, true},
		{"pkg/module.pyc", false, true},
		{"web/node_modules/react/index.js", false, true},
		{"fixtures", true, true},
		{"server.log", false, true},
		{"keep.log", false, false},
		{"src/main.py", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignored, matcher.Match(tt.path, tt.isDir))
		})
	}

	// *.pyc appears in both files but is compiled once.
	count := 0
	for _, p := range matcher.Patterns() {
		if p == "*.pyc" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestParseProject_NoIgnoreFiles(t *testing.T) {
	matcher, err := NewParser(DefaultIgnoreFiles, DefaultPatterns).ParseProject(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultPatterns, matcher.Patterns())
	assert.True(t, matcher.Match(".git", true))
	assert.False(t, matcher.Match("main.go", false))
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("anything.go", false))
}

func TestDeduplicate(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d"}, deduplicate([]string{"a", "b", "a", "c", "b", "d"}))
}
