package tarentry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrWriteTooLong is returned when more bytes are written than the current
// header's size allows.
var ErrWriteTooLong = errors.New("tarentry: write too long")

var zeroBlock [BlockSize]byte

// blockPad returns the padding needed to round n up to a block boundary.
func blockPad(n int64) int64 {
	return -n & (BlockSize - 1)
}

// Reader reads a sequence of header records and their content blocks.
//
// GNU long-name and long-link records and PAX extended headers are folded
// into the entry they precede. PAX records that mirror a header field
// override it; all records stay available in Entry.PAX.
type Reader struct {
	r         io.Reader
	remaining int64
	pad       int64
	block     [BlockSize]byte
	err       error
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next advances to the next entry. It returns io.EOF at the end of the
// archive: an empty-name record, or a clean end of input on a block boundary.
func (tr *Reader) Next() (*Entry, error) {
	if tr.err != nil {
		return nil, tr.err
	}
	e, err := tr.next()
	if err != nil {
		tr.err = err
		return nil, err
	}
	return e, nil
}

func (tr *Reader) next() (*Entry, error) {
	var (
		longName, longLink string
		pax, global        map[string]string
	)
	for {
		if err := tr.skip(); err != nil {
			return nil, err
		}
		e, err := tr.readHeader()
		if err != nil {
			return nil, err
		}
		tr.remaining = e.Size
		tr.pad = blockPad(e.Size)

		switch e.Typeflag {
		case TypeGNULong, TypeGNULongLink:
			data, err := tr.readMeta(e.Size)
			if err != nil {
				return nil, err
			}
			if e.Typeflag == TypeGNULong {
				longName = string(bytes.TrimRight(data, "\x00"))
			} else {
				longLink = string(bytes.TrimRight(data, "\x00"))
			}
			continue
		case TypePAX, TypePAXGlobl:
			data, err := tr.readMeta(e.Size)
			if err != nil {
				return nil, err
			}
			recs, err := parsePAX(data)
			if err != nil {
				return nil, err
			}
			if e.Typeflag == TypePAX {
				pax = recs
			} else {
				global = recs
			}
			continue
		}

		if longName != "" {
			e.Name, e.Prefix = longName, ""
		}
		if longLink != "" {
			e.Linkname = longLink
		}
		if err := e.applyPAX(pax); err != nil {
			return nil, err
		}
		e.PAX, e.GlobalPAX = pax, global
		tr.remaining = e.Size
		tr.pad = blockPad(e.Size)
		return e, nil
	}
}

func (tr *Reader) readHeader() (*Entry, error) {
	n, err := io.ReadFull(tr.r, tr.block[:])
	if err == io.EOF && n == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	e, err := Unmarshal(tr.block[:])
	if errors.Is(err, ErrEndOfArchive) {
		return nil, io.EOF
	}
	return e, err
}

func (tr *Reader) readMeta(size int64) ([]byte, error) {
	const maxMeta = 1 << 20
	if size > maxMeta {
		return nil, fmt.Errorf("%w: metadata record of %d bytes", ErrHeader, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(tr, data); err != nil {
		return nil, fmt.Errorf("read metadata record: %w", err)
	}
	return data, nil
}

// skip discards the unread content and padding of the current entry.
func (tr *Reader) skip() error {
	n := tr.remaining + tr.pad
	if n == 0 {
		return nil
	}
	tr.remaining, tr.pad = 0, 0
	if _, err := io.CopyN(io.Discard, tr.r, n); err != nil {
		return fmt.Errorf("skip entry content: %w", err)
	}
	return nil
}

// Read reads content of the current entry.
func (tr *Reader) Read(p []byte) (int, error) {
	if tr.err != nil {
		return 0, tr.err
	}
	if tr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > tr.remaining {
		p = p[:tr.remaining]
	}
	n, err := tr.r.Read(p)
	tr.remaining -= int64(n)
	if err == io.EOF && tr.remaining > 0 {
		err = io.ErrUnexpectedEOF
		tr.err = err
	}
	return n, err
}

// Writer writes header records and content blocks.
type Writer struct {
	w         io.Writer
	remaining int64
	pad       int64
	closed    bool
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader finishes the current entry and writes the header of the next.
// The previous entry must have been written completely. Values that do not
// fit the ustar slots, and the PAX records of e, are written as PAX
// extended headers ahead of the ustar record.
func (tw *Writer) WriteHeader(e *Entry) error {
	if tw.closed {
		return errors.New("tarentry: write to closed writer")
	}
	if err := tw.finishEntry(); err != nil {
		return err
	}
	hdr, recs := e.ustar()
	if len(e.GlobalPAX) > 0 {
		if err := tw.writeExtension(TypePAXGlobl, globalHeaderName, e.GlobalPAX); err != nil {
			return err
		}
	}
	if len(recs) > 0 {
		if err := tw.writeExtension(TypePAX, paxHeaderName, recs); err != nil {
			return err
		}
	}
	b, err := hdr.Marshal()
	if err != nil {
		return err
	}
	if _, err := tw.w.Write(b); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	e.Checksum = hdr.Checksum
	tw.remaining = e.Size
	tw.pad = blockPad(e.Size)
	return nil
}

// writeExtension writes one PAX extended header record and its data.
func (tw *Writer) writeExtension(flag byte, name string, recs map[string]string) error {
	data := formatPAX(recs)
	x := &Entry{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0),
		Typeflag: flag,
		Magic:    magicUSTAR,
		Version:  versionUSTAR,
	}
	b, err := x.Marshal()
	if err != nil {
		return err
	}
	if _, err := tw.w.Write(b); err != nil {
		return fmt.Errorf("write extended header: %w", err)
	}
	if _, err := tw.w.Write(data); err != nil {
		return fmt.Errorf("write extended header: %w", err)
	}
	if _, err := tw.w.Write(zeroBlock[:blockPad(x.Size)]); err != nil {
		return fmt.Errorf("write padding: %w", err)
	}
	return nil
}

// Write writes content for the current entry.
func (tw *Writer) Write(p []byte) (int, error) {
	if int64(len(p)) > tw.remaining {
		n, err := tw.w.Write(p[:tw.remaining])
		tw.remaining -= int64(n)
		if err != nil {
			return n, err
		}
		return n, ErrWriteTooLong
	}
	n, err := tw.w.Write(p)
	tw.remaining -= int64(n)
	return n, err
}

func (tw *Writer) finishEntry() error {
	if tw.remaining > 0 {
		return fmt.Errorf("tarentry: entry short by %d bytes", tw.remaining)
	}
	if tw.pad > 0 {
		if _, err := tw.w.Write(zeroBlock[:tw.pad]); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
		tw.pad = 0
	}
	return nil
}

// Close finishes the current entry and writes the two-block end marker. It
// does not close the underlying writer.
func (tw *Writer) Close() error {
	if tw.closed {
		return nil
	}
	if err := tw.finishEntry(); err != nil {
		return err
	}
	tw.closed = true
	for range 2 {
		if _, err := tw.w.Write(zeroBlock[:]); err != nil {
			return fmt.Errorf("write end marker: %w", err)
		}
	}
	return nil
}
