// Package vpath normalizes and decomposes virtual paths.
//
// A virtual path addresses a member inside an archive, optionally through a
// chain of nested archives. Archive boundaries are marked with [Separator]:
//
//	outer.zip#virtual#/inner.tar#virtual#/docs/readme.txt
//
// The part before the first separator is a real file system path and is
// never rewritten. Every part after it is a slash-separated member path in
// canonical form: no backslashes, no empty or "." segments, no leading or
// trailing slash.
package vpath

import "strings"

const (
	// CanonicalSeparator marks an archive boundary inside a virtual path.
	CanonicalSeparator = "#virtual#"

	// Separator is the boundary marker as written between two path parts.
	Separator = CanonicalSeparator + "/"
)

// Clean normalizes a virtual path.
//
// It converts backslashes to slashes, collapses consecutive slashes, drops
// "." segments and strips leading and trailing slashes from every
// in-archive part. The real
// prefix before the first [CanonicalSeparator] is preserved unmodified. A
// path containing a colon but no separator is treated as an operating
// system path (for example "C:\temp\a.zip") and returned unchanged.
func Clean(raw string) string {
	i := strings.Index(raw, CanonicalSeparator)
	if i < 0 {
		if strings.Contains(raw, ":") {
			return raw
		}
		return CleanMember(raw)
	}

	realPart := raw[:i]
	parts := strings.Split(raw[i+len(CanonicalSeparator):], CanonicalSeparator)
	for j, part := range parts {
		parts[j] = CleanMember(part)
	}
	return realPart + Separator + strings.Join(parts, Separator)
}

// CleanMember canonicalizes a single in-archive path without treating
// archive separators or colons specially. The archive root is "", so
// "./", "." and "/" all clean to "". ".." segments are kept.
func CleanMember(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	if !strings.Contains(p, "//") && !hasDotSegment(p) {
		return p
	}

	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return strings.Join(result, "/")
}

func hasDotSegment(p string) bool {
	return p == "." || strings.HasPrefix(p, "./") || strings.HasSuffix(p, "/.") || strings.Contains(p, "/./")
}

// IsVirtual reports whether raw crosses at least one archive boundary.
func IsVirtual(raw string) bool {
	return strings.Contains(raw, CanonicalSeparator)
}

// Join returns the member path of name inside parent.
// Both arguments are cleaned; an empty parent denotes the archive root.
func Join(parent, name string) string {
	parent = CleanMember(parent)
	name = CleanMember(name)
	switch {
	case parent == "":
		return name
	case name == "":
		return parent
	default:
		return parent + "/" + name
	}
}

// Split splits a member path into its parent path and leaf name.
//
//	Split("a/b/c") == ("a/b", "c")
//	Split("c")     == ("", "c")
func Split(fullName string) (parent, name string) {
	fullName = CleanMember(fullName)
	i := strings.LastIndexByte(fullName, '/')
	if i < 0 {
		return "", fullName
	}
	return fullName[:i], fullName[i+1:]
}

// Ancestors returns every proper ancestor of fullName, nearest first.
//
//	Ancestors("a/b/c") == []string{"a/b", "a"}
func Ancestors(fullName string) []string {
	var out []string
	for {
		parent, _ := Split(fullName)
		if parent == "" {
			return out
		}
		out = append(out, parent)
		fullName = parent
	}
}

// HasPrefix reports whether fullName equals dir or lies beneath it.
// Every member lies beneath the root dir "".
func HasPrefix(fullName, dir string) bool {
	if dir == "" {
		return true
	}
	return fullName == dir || strings.HasPrefix(fullName, dir+"/")
}
