// Package arcvfs exposes the members of ZIP and TAR family archives as a
// navigable, mutable virtual file system.
//
// A [Handler] serves one archive file. Members are addressed by canonical
// slash-separated paths relative to the archive root ("docs/readme.txt");
// the root is "". Queries return [VirtualChild] values built from an
// in-memory directory index. Directories implied by member paths are
// synthesized even when the container stores no record for them.
//
// Archive formats are immutable containers, so every mutation (add, replace,
// delete, rename, move, create) rewrites the whole container. The new
// container is written to a sibling "<archive>temp" file and swapped in
// only after it is complete; a failed mutation leaves the archive as it was.
//
// [Archive] implements Handler once on top of a format [Engine]. The zipvfs
// and tarvfs packages provide engines; the registry package maps file
// extensions to them and resolves paths into nested archives:
//
//	outer.zip#virtual#/lib/inner.tar#virtual#/readme.txt
package arcvfs
