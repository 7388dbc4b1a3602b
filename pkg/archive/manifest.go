package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultFiles lists the project files archived when no manifest is configured.
var DefaultFiles = []string{
	"README.md",
	"go.mod",
	"go.sum",
	"silk.yaml",
}

// DefaultInclude lists the glob patterns archived when no manifest is configured.
var DefaultInclude = []string{
	"cmd/**/*.go",
	"pkg/**/*.go",
}

// Manifest describes which project files go into an archive.
// Files keep their order; Include patterns are expanded under the root and
// appended in lexical order. Entries matched by .gitignore are dropped from
// the expanded patterns but never from Files.
type Manifest struct {
	Files            []string
	Include          []string
	RespectGitignore bool
}

// Resolve returns the slash-separated relative paths described by m,
// without duplicates. Explicit files are returned even when they do not exist
// so the builder can report them as skipped.
func (m Manifest) Resolve(root string) ([]string, error) {
	seen := make(map[string]struct{}, len(m.Files))
	out := make([]string, 0, len(m.Files))

	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, f := range m.Files {
		clean, err := cleanRelative(f)
		if err != nil {
			return nil, err
		}
		add(clean)
	}

	if len(m.Include) == 0 {
		return out, nil
	}

	var gi *ignore.GitIgnore
	if m.RespectGitignore {
		var err error
		gi, err = loadGitignore(root)
		if err != nil {
			return nil, err
		}
	}

	fsys := os.DirFS(root)
	var matched []string

	for _, pattern := range m.Include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("archive: invalid include pattern %q", pattern)
		}

		hits, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("archive: glob %q: %w", pattern, err)
		}

		for _, h := range hits {
			if gi != nil && gi.MatchesPath(h) {
				continue
			}
			matched = append(matched, h)
		}
	}

	sort.Strings(matched)
	for _, h := range matched {
		add(h)
	}

	return out, nil
}

// loadGitignore compiles the root .gitignore. A missing file yields nil.
func loadGitignore(root string) (*ignore.GitIgnore, error) {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: read .gitignore: %w", err)
	}
	return gi, nil
}

// cleanRelative normalises a manifest entry and rejects paths escaping the root.
func cleanRelative(p string) (string, error) {
	clean := path.Clean(filepath.ToSlash(p))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("archive: manifest entry %q escapes the project root", p)
	}
	return clean, nil
}
