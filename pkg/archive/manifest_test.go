package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_FilesThenSortedGlobs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"README.md":        "r",
		"pkg/b/b.go":       "b",
		"pkg/a/a.go":       "a",
		"pkg/a/a_test.txt": "t",
		"cmd/silk/main.go": "m",
	})

	m := Manifest{
		Files:   []string{"README.md", "pkg/b/b.go"},
		Include: []string{"pkg/**/*.go", "cmd/**/*.go"},
	}

	got, err := m.Resolve(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "pkg/b/b.go", "cmd/silk/main.go", "pkg/a/a.go"}, got)
}

func TestResolve_KeepsMissingExplicitFiles(t *testing.T) {
	got, err := Manifest{Files: []string{"missing.txt", "./missing.txt"}}.Resolve(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"missing.txt"}, got)
}

func TestResolve_Gitignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":        "secret/\n*.log\n",
		"keep.go":           "k",
		"debug.log":         "l",
		"secret/token.go":   "s",
		"nested/deep/ok.go": "o",
		"nested/deep/x.log": "x",
	})

	m := Manifest{
		Files:            []string{"debug.log"},
		Include:          []string{"**/*"},
		RespectGitignore: true,
	}

	got, err := m.Resolve(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"debug.log", ".gitignore", "keep.go", "nested/deep/ok.go"}, got)
}

func TestResolve_GitignoreMissingFile(t *testing.T) {
	root := writeTree(t, map[string]string{"a.go": "a"})

	got, err := Manifest{Include: []string{"*.go"}, RespectGitignore: true}.Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, got)
}

func TestResolve_RejectsEscapingPaths(t *testing.T) {
	for _, p := range []string{"../etc/passwd", "/etc/passwd", "."} {
		_, err := Manifest{Files: []string{p}}.Resolve(t.TempDir())
		assert.Error(t, err, p)
	}
}

func TestResolve_InvalidPattern(t *testing.T) {
	_, err := Manifest{Include: []string{"[unclosed"}}.Resolve(t.TempDir())
	assert.Error(t, err)
}
