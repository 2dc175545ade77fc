package repo

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreChecker decides whether a repo-relative path is excluded from
// tracking. The control directories .fig and .git are always ignored;
// additional patterns come from a .figignore file at the repository root.
//
// Pattern language: one pattern per line, '#' comments, blank lines
// skipped. Patterns without a slash match the path's base name (and any
// directory of that name); patterns with a slash match the whole
// repo-relative path. Both forms go through path.Match, so '*' and '?'
// work as usual. A trailing '/' restricts the pattern to directories.
type IgnoreChecker struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern  string
	dirOnly  bool
	hasSlash bool
}

// NewIgnoreChecker loads .figignore (if present) from repoRoot.
func NewIgnoreChecker(repoRoot string) *IgnoreChecker {
	ic := &IgnoreChecker{
		patterns: []ignorePattern{
			{pattern: figDirName},
			{pattern: ".git"},
		},
	}

	f, err := os.Open(filepath.Join(repoRoot, ".figignore"))
	if err != nil {
		return ic
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := ignorePattern{pattern: line}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			p.pattern = strings.TrimSuffix(line, "/")
		}
		p.pattern = strings.TrimPrefix(p.pattern, "/")
		p.hasSlash = strings.Contains(p.pattern, "/")
		ic.patterns = append(ic.patterns, p)
	}
	return ic
}

// IsIgnored reports whether the given repo-relative slash path is ignored.
// isDir says whether rel itself names a directory. A path is also ignored
// when any of its parent directories matches.
func (ic *IgnoreChecker) IsIgnored(rel string, isDir bool) bool {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return false
	}
	segments := strings.Split(rel, "/")
	for i := 1; i <= len(segments); i++ {
		prefix := strings.Join(segments[:i], "/")
		dir := isDir || i < len(segments)
		if ic.matches(prefix, dir) {
			return true
		}
	}
	return false
}

func (ic *IgnoreChecker) matches(rel string, isDir bool) bool {
	base := path.Base(rel)
	for _, p := range ic.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		target := base
		if p.hasSlash {
			target = rel
		}
		if ok, err := path.Match(p.pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}
