// Package discover expands glob patterns into the list of files to process.
package discover

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Files expands pattern using shell-glob semantics, including recursive "**"
// and "{a,b}" alternation, and returns the matching entries that are not
// directories, sorted lexicographically for deterministic processing order.
// Wildcards do not match names starting with a dot unless the pattern
// spells out that dot, so "**/*.txt" stays out of ".git".
//
// A pattern that matches nothing yields an empty slice and no error. A
// malformed pattern or a filesystem error while walking is returned wrapped;
// callers can test for doublestar.ErrBadPattern with errors.Is.
func Files(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern,
		doublestar.WithFilesOnly(),
		doublestar.WithFailOnIOErrors(),
	)
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", pattern, err)
	}
	slashed := filepath.ToSlash(pattern)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if visible(slashed, filepath.ToSlash(m)) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FilesIn expands a pattern relative to dir and returns the matches relative
// to dir. Absolute patterns are expanded as-is and return absolute paths.
//
// dir is never part of the pattern, so glob metacharacters in its name are
// taken literally. Leading ".." segments move the search root up and are
// kept on the returned paths.
func FilesIn(dir, pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		return Files(pattern)
	}

	p := path.Clean(filepath.ToSlash(pattern))
	root, prefix := dir, ""
	for p == ".." || strings.HasPrefix(p, "../") {
		root = filepath.Dir(root)
		prefix += "../"
		p = strings.TrimPrefix(strings.TrimPrefix(p, ".."), "/")
	}
	if p == "" {
		p = "."
	}

	matches, err := doublestar.Glob(os.DirFS(root), p,
		doublestar.WithFilesOnly(),
		doublestar.WithFailOnIOErrors(),
	)
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if visible(p, m) {
			out = append(out, filepath.FromSlash(path.Join(prefix, m)))
		}
	}
	sort.Strings(out)
	return out, nil
}

// visible reports whether every dot-prefixed segment of match is named by a
// pattern segment that itself starts with a dot. Both use "/" separators.
func visible(pattern, match string) bool {
	var dotted []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, ".") || strings.Contains(seg, "{.") || strings.Contains(seg, ",.") {
			dotted = append(dotted, seg)
		}
	}
	for _, seg := range strings.Split(match, "/") {
		if !strings.HasPrefix(seg, ".") {
			continue
		}
		named := false
		for _, d := range dotted {
			if ok, _ := doublestar.Match(d, seg); ok {
				named = true
				break
			}
		}
		if !named {
			return false
		}
	}
	return true
}
