// Package ignore reads .diegoignore files: gitignore-style patterns, one per
// line, matched with doublestar. Later rules override earlier ones and a
// leading "!" re-includes a path.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up at the scan root.
const FileName = ".diegoignore"

type rule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// Matcher answers whether a slash-separated path relative to the scan root
// is ignored.
type Matcher struct {
	rules []rule
}

// Load parses the ignore file at path. A missing file yields an empty
// matcher that ignores nothing.
func Load(path string) (Matcher, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Matcher{}, nil
	}
	if err != nil {
		return Matcher{}, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Matcher{}, err
	}
	return Parse(lines)
}

// Parse builds a matcher from pattern lines. Invalid globs are rejected.
func Parse(lines []string) (Matcher, error) {
	var m Matcher
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			line = strings.TrimLeft(line, "/")
			r.anchored = true
		} else if strings.Contains(line, "/") {
			r.anchored = true
		}
		if line == "" {
			continue
		}
		if !doublestar.ValidatePattern(line) {
			return Matcher{}, &PatternError{Pattern: raw}
		}
		r.pattern = line
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// PatternError reports an ignore line that is not a valid glob.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string { return "ignore: invalid pattern " + e.Pattern }

// Empty reports whether the matcher has no rules.
func (m Matcher) Empty() bool { return len(m.rules) == 0 }

// Match reports whether the file at rel is ignored.
func (m Matcher) Match(rel string) bool { return m.match(rel, false) }

// MatchDir reports whether the directory at rel is ignored, so a walker can
// skip it without descending.
func (m Matcher) MatchDir(rel string) bool { return m.match(rel, true) }

func (m Matcher) match(rel string, isDir bool) bool {
	rel = strings.Trim(strings.ReplaceAll(rel, "\\", "/"), "/")
	if rel == "" {
		return false
	}
	parts := strings.Split(rel, "/")
	ignored := false
	for _, r := range m.rules {
		if r.matches(parts, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(parts []string, isDir bool) bool {
	for i := range parts {
		last := i == len(parts)-1
		// A directory rule only applies to the final component when it is
		// itself a directory.
		if r.dirOnly && last && !isDir {
			continue
		}
		var subject string
		if r.anchored {
			subject = strings.Join(parts[:i+1], "/")
		} else {
			subject = parts[i]
		}
		if ok, _ := doublestar.Match(r.pattern, subject); ok {
			return true
		}
	}
	return false
}
