package tarentry

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// PAX record keys mirrored by Entry fields.
const (
	paxPath     = "path"
	paxLinkpath = "linkpath"
	paxSize     = "size"
	paxUID      = "uid"
	paxGID      = "gid"
	paxUname    = "uname"
	paxGname    = "gname"
	paxMtime    = "mtime"
)

// Names of the extension records written by the Writer.
const (
	paxHeaderName    = "././@PaxHeader"
	globalHeaderName = "GlobalHead.0.0"
)

// parsePAX decodes extended header data. Records have the form
// "<length> <key>=<value>\n" where length counts the whole record.
func parsePAX(data []byte) (map[string]string, error) {
	recs := make(map[string]string)
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp <= 0 {
			return nil, fmt.Errorf("%w: malformed PAX record", ErrHeader)
		}
		n, err := strconv.Atoi(string(data[:sp]))
		if err != nil || n <= sp+1 || n > len(data) || data[n-1] != '\n' {
			return nil, fmt.Errorf("%w: malformed PAX record length %q", ErrHeader, data[:sp])
		}
		key, value, ok := strings.Cut(string(data[sp+1:n-1]), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: malformed PAX record %q", ErrHeader, data[sp+1:n-1])
		}
		recs[key] = value
		data = data[n:]
	}
	return recs, nil
}

// formatPAX encodes records in key order.
func formatPAX(recs map[string]string) []byte {
	var buf bytes.Buffer
	for _, k := range slices.Sorted(maps.Keys(recs)) {
		buf.WriteString(formatPAXRecord(k, recs[k]))
	}
	return buf.Bytes()
}

// formatPAXRecord returns one record. Its length prefix counts its own
// digits, so a second pass is needed when adding them crosses a power of ten.
func formatPAXRecord(k, v string) string {
	const padding = 3 // ' ', '=' and '\n'
	size := len(k) + len(v) + padding
	size += len(strconv.Itoa(size))
	rec := strconv.Itoa(size) + " " + k + "=" + v + "\n"
	if len(rec) != size {
		size = len(rec)
		rec = strconv.Itoa(size) + " " + k + "=" + v + "\n"
	}
	return rec
}

// parsePAXTime decodes "<seconds>[.<fraction>]".
func parsePAXTime(s string) (time.Time, error) {
	secs, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if frac == "" {
		return time.Unix(sec, 0), nil
	}
	if len(frac) > 9 {
		frac = frac[:9]
	} else {
		frac += strings.Repeat("0", 9-len(frac))
	}
	nsec, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if strings.HasPrefix(secs, "-") {
		return time.Unix(sec, -int64(nsec)), nil
	}
	return time.Unix(sec, int64(nsec)), nil
}

func formatPAXTime(t time.Time) string {
	secs, nsecs := t.Unix(), int64(t.Nanosecond())
	if nsecs == 0 {
		return strconv.FormatInt(secs, 10)
	}
	sign := ""
	if secs < 0 {
		sign = "-"
		secs = -(secs + 1)
		nsecs = 1e9 - nsecs
	}
	return strings.TrimRight(fmt.Sprintf("%s%d.%09d", sign, secs, nsecs), "0")
}

// applyPAX overrides header fields with the records that mirror them.
func (e *Entry) applyPAX(recs map[string]string) error {
	for k, v := range recs {
		var err error
		switch k {
		case paxPath:
			e.Name, e.Prefix = v, ""
		case paxLinkpath:
			e.Linkname = v
		case paxUname:
			e.Uname = v
		case paxGname:
			e.Gname = v
		case paxSize:
			e.Size, err = strconv.ParseInt(v, 10, 64)
			if err == nil && e.Size < 0 {
				err = fmt.Errorf("negative size %d", e.Size)
			}
		case paxUID:
			e.UID, err = strconv.ParseInt(v, 10, 64)
		case paxGID:
			e.GID, err = strconv.ParseInt(v, 10, 64)
		case paxMtime:
			e.ModTime, err = parsePAXTime(v)
		}
		if err != nil {
			return fmt.Errorf("%w: PAX %s=%q: %w", ErrHeader, k, v, err)
		}
	}
	return nil
}

// ustar returns a copy of e whose values fit the ustar slots, and the PAX
// records carrying everything that does not. Records read with the entry
// are kept; those mirroring a field are recomputed from it, and mtime is
// kept whenever it was present so sub-second precision survives.
func (e *Entry) ustar() (*Entry, map[string]string) {
	hdr := *e
	hdr.PAX, hdr.GlobalPAX = nil, nil

	recs := make(map[string]string, len(e.PAX))
	for k, v := range e.PAX {
		switch k {
		case paxPath, paxLinkpath, paxSize, paxUID, paxGID, paxUname, paxGname, paxMtime:
		default:
			recs[k] = v
		}
	}

	full := e.FullName()
	if !hdr.SetFullName(full) {
		recs[paxPath] = full
		hdr.Name, hdr.Prefix = full[:fName.width], ""
	}
	if len(e.Linkname) > fLinkname.width {
		recs[paxLinkpath] = e.Linkname
		hdr.Linkname = e.Linkname[:fLinkname.width]
	}
	if len(e.Uname) > fUname.width {
		recs[paxUname] = e.Uname
		hdr.Uname = e.Uname[:fUname.width]
	}
	if len(e.Gname) > fGname.width {
		recs[paxGname] = e.Gname
		hdr.Gname = e.Gname[:fGname.width]
	}
	for _, n := range []struct {
		key string
		f   field
		v   int64
		dst *int64
	}{
		{paxSize, fSize, e.Size, &hdr.Size},
		{paxUID, fUID, e.UID, &hdr.UID},
		{paxGID, fGID, e.GID, &hdr.GID},
	} {
		if !n.f.fits(n.v) {
			recs[n.key] = strconv.FormatInt(n.v, 10)
			*n.dst = 0
		}
	}
	_, hadMtime := e.PAX[paxMtime]
	if mfit := fMtime.fits(e.ModTime.Unix()); hadMtime || !mfit {
		recs[paxMtime] = formatPAXTime(e.ModTime)
		if !mfit {
			hdr.ModTime = time.Unix(0, 0)
		}
	}

	if len(recs) == 0 {
		return &hdr, nil
	}
	hdr.Magic, hdr.Version = magicUSTAR, versionUSTAR
	return &hdr, recs
}
