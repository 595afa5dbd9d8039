package arcvfs

// Transcode selects how member bytes are converted while they are copied
// into or out of an archive. The zero value copies bytes unchanged.
//
// In text mode the bytes are decoded with Source and re-encoded with
// Target. An empty Target is UTF-8. A Source of "" is UTF-8 and "auto"
// detects the encoding from the content.
type Transcode struct {
	Text   bool
	Source string
	Target string
}

// Binary is the zero Transcode.
var Binary = Transcode{}

// AsText returns a text-mode Transcode.
func AsText(source, target string) Transcode {
	return Transcode{Text: true, Source: source, Target: target}
}

// Item is a local file or directory to add to an archive.
type Item struct {
	// Source is the local path. Directories are added recursively.
	Source string

	// Name is the leaf name inside the archive. It defaults to the base
	// name of Source.
	Name string

	// Encoding applies to every regular file added for this item.
	Encoding Transcode
}
