package arcvfs

import "errors"

// Sentinel errors returned by archive handlers.
//
// Member-level failures are reported as *fs.PathError wrapping fs.ErrNotExist
// (absent member) or fs.ErrExist (member already present), so callers can
// test them with errors.Is.
var (
	// ErrCorrupt is returned when the container cannot be read.
	ErrCorrupt = errors.New("arcvfs: archive is unreadable")

	// ErrReadOnly is returned by mutating operations on a read-only format.
	ErrReadOnly = errors.New("arcvfs: archive format is read-only")

	// ErrInvalidName is returned for an empty or malformed member name.
	ErrInvalidName = errors.New("arcvfs: invalid member name")

	// ErrNotDirectory is returned when a directory operation names a file.
	ErrNotDirectory = errors.New("arcvfs: not a directory")

	// ErrIsDirectory is returned when a file operation names a directory.
	ErrIsDirectory = errors.New("arcvfs: is a directory")
)
