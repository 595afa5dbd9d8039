// Package tarentry implements the 512-byte ustar header record and a block
// stream reader and writer built on it.
//
// Every header field is stored as ASCII text in a fixed-width slot:
// strings are NUL padded, numbers are zero-padded octal terminated by a NUL.
// The checksum is the unsigned byte sum of the whole header computed with the
// checksum slot itself filled with spaces. Numbers in GNU base-256 form are
// accepted on read. Values that do not fit their slot are carried in PAX
// extended header records by the Writer.
package tarentry

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BlockSize is the size of a header record and of a content block.
const BlockSize = 512

// Type flags.
const (
	TypeFile     byte = '0'
	TypeOldFile  byte = 0
	TypeLink     byte = '1'
	TypeSymlink  byte = '2'
	TypeChar     byte = '3'
	TypeBlock    byte = '4'
	TypeDir      byte = '5'
	TypeFifo     byte = '6'
	TypeGNULong     byte = 'L'
	TypeGNULongLink byte = 'K'
	TypePAX         byte = 'x'
	TypePAXGlobl    byte = 'g'
)

const (
	magicUSTAR   = "ustar"
	versionUSTAR = "00"
)

// Field layout: offset and width of every slot in the header record.
type field struct{ off, width int }

var (
	fName     = field{0, 100}
	fMode     = field{100, 8}
	fUID      = field{108, 8}
	fGID      = field{116, 8}
	fSize     = field{124, 12}
	fMtime    = field{136, 12}
	fChksum   = field{148, 8}
	fTypeflag = field{156, 1}
	fLinkname = field{157, 100}
	fMagic    = field{257, 6}
	fVersion  = field{263, 2}
	fUname    = field{265, 32}
	fGname    = field{297, 32}
	fDevmajor = field{329, 8}
	fDevminor = field{337, 8}
	fPrefix   = field{345, 155}
)

func (f field) slice(b []byte) []byte { return b[f.off : f.off+f.width] }

var (
	// ErrEndOfArchive is returned by Unmarshal for a record whose name
	// slot is empty, which terminates the archive.
	ErrEndOfArchive = errors.New("tarentry: end of archive")

	// ErrChecksum is returned when a header's stored checksum does not
	// match its contents.
	ErrChecksum = errors.New("tarentry: checksum mismatch")

	// ErrHeader is returned for a malformed header record.
	ErrHeader = errors.New("tarentry: invalid header")

	// ErrFieldRange is returned when a value does not fit its slot.
	ErrFieldRange = errors.New("tarentry: value out of field range")

	// ErrNameTooLong is returned by Marshal when a name cannot be stored in
	// the name and prefix slots.
	ErrNameTooLong = errors.New("tarentry: name too long")
)

// Entry is one decoded header record.
type Entry struct {
	Name     string
	Mode     int64
	UID      int64
	GID      int64
	Size     int64
	ModTime  time.Time
	Checksum int64
	Typeflag byte
	Linkname string
	Magic    string
	Version  string
	Uname    string
	Gname    string
	Devmajor int64
	Devminor int64
	Prefix   string

	// PAX holds the extended header records read with the entry. The
	// Writer emits them again, with the records for the fields above
	// recomputed from the fields.
	PAX map[string]string

	// GlobalPAX holds the records of a global extended header read just
	// before the entry.
	GlobalPAX map[string]string
}

// New returns a ustar entry for a regular file or, when name ends in "/",
// a directory. The modification time is the current time.
func New(name string) *Entry {
	e := &Entry{
		Mode:     0o644,
		ModTime:  time.Now(),
		Typeflag: TypeFile,
		Magic:    magicUSTAR,
		Version:  versionUSTAR,
	}
	if strings.HasSuffix(name, "/") {
		e.Mode = 0o755
		e.Typeflag = TypeDir
	}
	e.SetFullName(name)
	return e
}

// FullName returns the stored name with the ustar prefix applied.
func (e *Entry) FullName() string {
	if e.Prefix == "" {
		return e.Name
	}
	return e.Prefix + "/" + e.Name
}

// SetFullName stores name, splitting it across the prefix and name slots
// when it exceeds the name slot. It reports whether the name fits the two
// slots; a name that does not is kept whole in Name.
func (e *Entry) SetFullName(name string) bool {
	if len(name) <= fName.width {
		e.Name, e.Prefix = name, ""
		return true
	}
	// The split point must be a slash with a non-empty name after it.
	limit := min(len(name)-2, fPrefix.width)
	for i := limit; i > 0; i-- {
		if name[i] != '/' {
			continue
		}
		if len(name)-i-1 > fName.width {
			break
		}
		e.Prefix, e.Name = name[:i], name[i+1:]
		return true
	}
	e.Name, e.Prefix = name, ""
	return false
}

// IsDir reports whether the entry describes a directory.
func (e *Entry) IsDir() bool {
	return e.Typeflag == TypeDir || strings.HasSuffix(e.Name, "/")
}

// IsRegular reports whether the entry carries file content.
func (e *Entry) IsRegular() bool {
	return (e.Typeflag == TypeFile || e.Typeflag == TypeOldFile) && !strings.HasSuffix(e.Name, "/")
}

// SetUserMode sets the owner permission bits and clears group and other bits.
func (e *Entry) SetUserMode(read, write, exec bool) {
	var m int64
	if read {
		m |= 0o400
	}
	if write {
		m |= 0o200
	}
	if exec {
		m |= 0o100
	}
	e.Mode = m
}

// Marshal encodes the entry into a single ustar header record, computes its
// checksum and stores the checksum in e.Checksum. PAX records are not
// written; use a Writer for entries whose values exceed their slots.
func (e *Entry) Marshal() ([]byte, error) {
	if len(e.Name) > fName.width && !e.SetFullName(e.FullName()) {
		return nil, fmt.Errorf("%w: %q", ErrNameTooLong, e.FullName())
	}
	// Readers only honor the prefix slot in ustar headers.
	if e.Prefix != "" {
		e.Magic, e.Version = magicUSTAR, versionUSTAR
	}

	b := make([]byte, BlockSize)
	err := errors.Join(
		putString(b, fName, e.Name),
		putOctal(b, fMode, e.Mode),
		putOctal(b, fUID, e.UID),
		putOctal(b, fGID, e.GID),
		putOctal(b, fSize, e.Size),
		putOctal(b, fMtime, e.ModTime.Unix()),
		putString(b, fLinkname, e.Linkname),
		putString(b, fMagic, e.Magic),
		putString(b, fVersion, e.Version),
		putString(b, fUname, e.Uname),
		putString(b, fGname, e.Gname),
		putOctal(b, fDevmajor, e.Devmajor),
		putOctal(b, fDevminor, e.Devminor),
		putString(b, fPrefix, e.Prefix),
	)
	if err != nil {
		return nil, err
	}
	b[fTypeflag.off] = e.Typeflag

	e.Checksum = Checksum(b)
	putChecksum(b, e.Checksum)
	return b, nil
}

// Unmarshal decodes a header record. It returns ErrEndOfArchive for a record
// with an empty name slot and ErrChecksum when the stored checksum is wrong.
func Unmarshal(b []byte) (*Entry, error) {
	if len(b) < BlockSize {
		return nil, fmt.Errorf("%w: short record (%d bytes)", ErrHeader, len(b))
	}
	if fName.slice(b)[0] == 0 {
		return nil, ErrEndOfArchive
	}

	stored, err := parseOctal(fChksum.slice(b))
	if err != nil {
		return nil, fmt.Errorf("%w: checksum: %w", ErrHeader, err)
	}
	if sum := Checksum(b); sum != stored {
		return nil, fmt.Errorf("%w: stored %o, computed %o", ErrChecksum, stored, sum)
	}

	e := &Entry{
		Name:     parseString(fName.slice(b)),
		Checksum: stored,
		Typeflag: b[fTypeflag.off],
		Linkname: parseString(fLinkname.slice(b)),
		Magic:    strings.TrimRight(parseString(fMagic.slice(b)), " "),
		Version:  strings.Trim(parseString(fVersion.slice(b)), " "),
		Uname:    parseString(fUname.slice(b)),
		Gname:    parseString(fGname.slice(b)),
	}

	var mtime int64
	for _, n := range []struct {
		f   field
		dst *int64
	}{
		{fMode, &e.Mode},
		{fUID, &e.UID},
		{fGID, &e.GID},
		{fSize, &e.Size},
		{fMtime, &mtime},
		{fDevmajor, &e.Devmajor},
		{fDevminor, &e.Devminor},
	} {
		v, perr := parseNumeric(n.f.slice(b))
		if perr != nil {
			return nil, fmt.Errorf("%w: %w", ErrHeader, perr)
		}
		*n.dst = v
	}
	e.ModTime = time.Unix(mtime, 0)

	if e.Magic == magicUSTAR && e.Version == versionUSTAR {
		e.Prefix = parseString(fPrefix.slice(b))
	}
	if e.Size < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrHeader)
	}
	return e, nil
}

// Checksum returns the byte sum of a header record with the checksum slot
// treated as eight spaces.
func Checksum(b []byte) int64 {
	var sum int64
	for i, c := range b[:BlockSize] {
		if i >= fChksum.off && i < fChksum.off+fChksum.width {
			c = ' '
		}
		sum += int64(c)
	}
	return sum
}

// putChecksum writes six octal digits, a NUL and a space.
func putChecksum(b []byte, sum int64) {
	s := fChksum.slice(b)
	copy(s, fmt.Sprintf("%06o", sum))
	s[6] = 0
	s[7] = ' '
}

func putString(b []byte, f field, s string) error {
	if len(s) > f.width {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrFieldRange, s, f.width)
	}
	copy(f.slice(b), s)
	return nil
}

// fits reports whether v can be written to f by putOctal.
func (f field) fits(v int64) bool {
	return v >= 0 && len(strconv.FormatInt(v, 8)) <= f.width-1
}

// putOctal writes v as zero-padded octal of width-1 digits plus a NUL.
func putOctal(b []byte, f field, v int64) error {
	if v < 0 {
		return fmt.Errorf("%w: negative value %d", ErrFieldRange, v)
	}
	s := strconv.FormatInt(v, 8)
	digits := f.width - 1
	if len(s) > digits {
		return fmt.Errorf("%w: %d needs more than %d octal digits", ErrFieldRange, v, digits)
	}
	dst := f.slice(b)
	copy(dst, strings.Repeat("0", digits-len(s))+s)
	dst[digits] = 0
	return nil
}

func parseString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// parseNumeric decodes an octal slot or, when the high bit of the first
// byte is set, a GNU base-256 slot: a big-endian two's complement number
// with the marker bit cleared.
func parseNumeric(b []byte) (int64, error) {
	if len(b) == 0 || b[0]&0x80 == 0 {
		return parseOctal(b)
	}
	var inv byte
	if b[0]&0x40 != 0 {
		inv = 0xff
	}
	var x uint64
	for i, c := range b {
		c ^= inv
		if i == 0 {
			c &= 0x7f
		}
		if x>>56 != 0 {
			return 0, fmt.Errorf("%w: base-256 value overflows int64", ErrFieldRange)
		}
		x = x<<8 | uint64(c)
	}
	if x>>63 != 0 {
		return 0, fmt.Errorf("%w: base-256 value overflows int64", ErrFieldRange)
	}
	if inv == 0xff {
		return ^int64(x), nil
	}
	return int64(x), nil
}

// parseOctal accepts leading spaces or NULs and stops at the first NUL or
// space after the digits. An empty slot is zero.
func parseOctal(b []byte) (int64, error) {
	s := strings.TrimLeft(string(b), " \x00")
	if i := strings.IndexAny(s, " \x00"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0, fmt.Errorf("parse octal %q: %w", s, err)
	}
	return v, nil
}
