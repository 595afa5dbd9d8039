package arcvfs

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/meigma/arcvfs/internal/dirindex"
	"github.com/meigma/arcvfs/internal/textenc"
	"github.com/meigma/arcvfs/vpath"
)

// maxLineLength bounds a single line held in memory while searching.
const maxLineLength = 1 << 20

// Span is the byte range [Start, End) of one match within a line.
type Span struct {
	Start int
	End   int
}

// LineMatch is one matching line of a member.
type LineMatch struct {
	// Number is the 1-based line number.
	Number int
	Line   string
	Spans  []Span
}

// FileMatch holds the matching lines of one member.
type FileMatch struct {
	FullName string
	Lines    []LineMatch
}

// MatcherOption configures a Matcher.
type MatcherOption func(*matcherConfig)

type matcherConfig struct {
	regex         bool
	caseSensitive bool
	encoding      string
}

// MatchRegex interprets the pattern as a regular expression instead of a
// wildcard pattern.
func MatchRegex() MatcherOption {
	return func(c *matcherConfig) {
		c.regex = true
	}
}

// MatchCaseSensitive disables case folding.
func MatchCaseSensitive() MatcherOption {
	return func(c *matcherConfig) {
		c.caseSensitive = true
	}
}

// MatchEncoding decodes member content from the named encoding before
// matching. "auto" detects it per member.
func MatchEncoding(name string) MatcherOption {
	return func(c *matcherConfig) {
		c.encoding = name
	}
}

// Matcher finds a pattern in lines of text.
//
// Wildcard patterns match anywhere in a line: "*" matches any run of
// characters and "?" a single character. Matching is case-insensitive
// unless MatchCaseSensitive is given.
type Matcher struct {
	pattern  string
	re       *regexp.Regexp
	encoding string
}

// NewMatcher compiles pattern.
func NewMatcher(pattern string, opts ...MatcherOption) (*Matcher, error) {
	var cfg matcherConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Matcher{pattern: pattern, encoding: cfg.encoding}
	if pattern == "" {
		return m, nil
	}

	expr := pattern
	if !cfg.regex {
		expr = wildcardExpr(pattern)
	}
	if !cfg.caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	m.re = re
	return m, nil
}

// wildcardExpr translates a wildcard pattern into a regular expression.
// Leading and trailing stars are dropped so spans cover the literal text.
func wildcardExpr(pattern string) string {
	pattern = strings.Trim(pattern, "*")
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*?")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// Pattern returns the pattern the matcher was built from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// IsEmpty reports whether the pattern is empty.
func (m *Matcher) IsEmpty() bool {
	return m == nil || m.pattern == ""
}

// IsAsterisk reports whether the pattern consists only of stars.
func (m *Matcher) IsAsterisk() bool {
	return m != nil && m.pattern != "" && strings.Trim(m.pattern, "*") == ""
}

// searchable reports whether running m can produce meaningful results.
func (m *Matcher) searchable() bool {
	return !m.IsEmpty() && !m.IsAsterisk() && m.re != nil
}

// Match returns the spans of every match in line.
func (m *Matcher) Match(line string) []Span {
	if !m.searchable() {
		return nil
	}
	var spans []Span
	for _, loc := range m.re.FindAllStringIndex(line, -1) {
		if loc[0] == loc[1] {
			continue
		}
		spans = append(spans, Span{Start: loc[0], End: loc[1]})
	}
	return spans
}

// scan streams r line by line and returns the matching lines.
func (m *Matcher) scan(r io.Reader) ([]LineMatch, error) {
	if m.encoding != "" {
		tr, _, err := textenc.NewReader(r, m.encoding, textenc.UTF8)
		if err != nil {
			return nil, err
		}
		r = tr
	}

	br := bufio.NewReader(r)
	var out []LineMatch
	for n := 1; ; n++ {
		line, err := readLine(br)
		if line != "" || err == nil {
			if spans := m.Match(line); len(spans) > 0 {
				out = append(out, LineMatch{Number: n, Line: line, Spans: spans})
			}
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// readLine returns the next line without its terminator. Lines longer than
// maxLineLength are truncated.
func readLine(br *bufio.Reader) (string, error) {
	var b []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(b) < maxLineLength {
			b = append(b, chunk[:min(len(chunk), maxLineLength-len(b))]...)
		}
		if err != nil {
			return string(b), err
		}
		if !isPrefix {
			return string(b), nil
		}
	}
}

// Search streams the file member at fullName through m. Directories,
// missing members and empty or wildcard-only patterns yield nothing.
func (a *Archive) Search(fullName string, m *Matcher) []LineMatch {
	if !m.searchable() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.lookup(vpath.CleanMember(fullName))
	if !ok || e.IsDir {
		return nil
	}
	return a.search(e, m)
}

func (a *Archive) search(e dirindex.Entry, m *Matcher) []LineMatch {
	rc, err := a.open(e)
	if err != nil {
		return nil
	}
	defer rc.Close()

	lines, err := m.scan(rc)
	if err != nil {
		a.log().Debug("search stopped",
			zap.String("archive", a.path),
			zap.String("member", e.FullName),
			zap.Error(err))
	}
	return lines
}

// SearchTree searches every file member beneath dir whose full name
// matches the doublestar pattern glob. An empty glob matches every member.
// Results are in depth-first name order.
func SearchTree(h Handler, dir, glob string, m *Matcher) []FileMatch {
	if !m.searchable() {
		return nil
	}

	var out []FileMatch
	var visit func(dir string)
	visit = func(dir string) {
		for _, vc := range h.VirtualChildren(dir) {
			if vc.IsDirectory {
				visit(vc.FullName)
				continue
			}
			if glob != "" {
				if ok, err := doublestar.Match(glob, vc.FullName); err != nil || !ok {
					continue
				}
			}
			if lines := h.Search(vc.FullName, m); len(lines) > 0 {
				out = append(out, FileMatch{FullName: vc.FullName, Lines: lines})
			}
		}
	}
	visit(vpath.CleanMember(dir))
	return out
}
