// Package textenc transcodes text between named character encodings.
//
// Encoding names are IANA charset names or WHATWG labels ("UTF-8",
// "ISO-8859-1", "windows-1252", "Shift_JIS"). The empty name is UTF-8.
// The source name "auto" selects the encoding by inspecting the content.
package textenc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Auto requests detection of the source encoding.
const Auto = "auto"

// UTF8 is the canonical name of the default encoding.
const UTF8 = "UTF-8"

// sniffLen is the number of leading bytes inspected by detection.
const sniffLen = 8 * 1024

// ErrUnknownEncoding is returned for an encoding name that cannot be resolved.
var ErrUnknownEncoding = errors.New("textenc: unknown encoding")

// Lookup resolves an encoding name.
func Lookup(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// Canonical returns the canonical name of an encoding name, or the name
// itself when it has none.
func Canonical(name string) string {
	enc, err := Lookup(name)
	if err != nil {
		return name
	}
	if enc == unicode.UTF8 {
		return UTF8
	}
	if n, err := ianaindex.IANA.Name(enc); err == nil {
		return n
	}
	if n, err := htmlindex.Name(enc); err == nil {
		return n
	}
	return name
}

// Same reports whether two encoding names denote the same encoding.
func Same(a, b string) bool {
	return strings.EqualFold(Canonical(a), Canonical(b))
}

// Detect guesses the encoding of sample. Valid UTF-8 is always reported as
// UTF-8; otherwise the best chardet guess is used.
func Detect(sample []byte) string {
	if utf8.Valid(sample) {
		return UTF8
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Charset == "" {
		return UTF8
	}
	if _, err := Lookup(res.Charset); err != nil {
		return UTF8
	}
	return res.Charset
}

// NewReader returns a reader yielding the content of r decoded from the
// from encoding and re-encoded in the to encoding. When both name the same
// encoding r's bytes pass through unchanged. The resolved source encoding
// name is returned alongside.
func NewReader(r io.Reader, from, to string) (io.Reader, string, error) {
	if strings.EqualFold(from, Auto) {
		br := bufio.NewReaderSize(r, sniffLen)
		sample, err := br.Peek(sniffLen)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, "", fmt.Errorf("sniff encoding: %w", err)
		}
		from = Detect(trimPartialRune(sample))
		r = br
	}

	if Same(from, to) {
		return r, Canonical(from), nil
	}
	src, err := Lookup(from)
	if err != nil {
		return nil, "", err
	}
	dst, err := Lookup(to)
	if err != nil {
		return nil, "", err
	}
	t := transform.Chain(src.NewDecoder(), dst.NewEncoder())
	return transform.NewReader(r, t), Canonical(from), nil
}

// NewWriter returns a writer that transcodes everything written to it from
// the from encoding into the to encoding before passing it to w. Close must
// be called to flush buffered bytes; it does not close w.
func NewWriter(w io.Writer, from, to string) (io.WriteCloser, error) {
	if Same(from, to) {
		return nopCloser{w}, nil
	}
	src, err := Lookup(from)
	if err != nil {
		return nil, err
	}
	dst, err := Lookup(to)
	if err != nil {
		return nil, err
	}
	return transform.NewWriter(w, transform.Chain(src.NewDecoder(), dst.NewEncoder())), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// trimPartialRune drops an incomplete UTF-8 sequence cut off by the sniff
// window so it does not defeat UTF-8 detection.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}
