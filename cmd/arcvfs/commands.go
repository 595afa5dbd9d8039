package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/meigma/arcvfs"
	"github.com/meigma/arcvfs/extractcache"
	"github.com/meigma/arcvfs/internal/textenc"
	"github.com/meigma/arcvfs/vpath"
)

var errNestedReadOnly = errors.New("members of nested archives cannot be modified")

type command struct {
	help string
	run  func(a *app, args []string) error
}

var commands = map[string]command{
	"create":   {"create an empty archive", cmdCreate},
	"ls":       {"list a directory (-r: every stored member, -l: long format)", cmdLs},
	"stat":     {"show member metadata", cmdStat},
	"cat":      {"write a file member to stdout", cmdCat},
	"extract":  {"extract a member or directory to a local directory", cmdExtract},
	"add":      {"add local files or directories to an archive directory", cmdAdd},
	"rm":       {"delete members", cmdRm},
	"mv":       {"move a member into a directory (-to: move to a full name)", cmdMv},
	"rename":   {"change the name of a member", cmdRename},
	"mkdir":    {"create directory members", cmdMkdir},
	"touch":    {"create empty file members", cmdTouch},
	"grep":     {"search file members for a pattern", cmdGrep},
	"find":     {"list stored members matching a glob", cmdFind},
	"classify": {"classify file members", cmdClassify},
	"comment":  {"show the archive or member comment", cmdComment},
	"cache":    {"report or prune the extraction cache", cmdCache},
}

func commandNames() []string {
	return slices.Sorted(maps.Keys(commands))
}

func newFlags(name string) *flag.FlagSet {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	return fset
}

// parse parses args and checks that at least minArgs and at most maxArgs
// positional arguments remain. A negative maxArgs means no upper bound.
func parse(fset *flag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("%s: %w", fset.Name(), err)
	}
	rest := fset.Args()
	if len(rest) < minArgs || (maxArgs >= 0 && len(rest) > maxArgs) {
		return nil, fmt.Errorf("%s: wrong number of arguments", fset.Name())
	}
	return rest, nil
}

// encFlags selects text transcoding.
type encFlags struct {
	text bool
	from string
	to   string
}

func (e *encFlags) register(fset *flag.FlagSet, from, to string) {
	fset.BoolVar(&e.text, "text", false, "transcode content as text")
	fset.StringVar(&e.from, "from", from, `source encoding in text mode ("auto" detects it)`)
	fset.StringVar(&e.to, "to", to, "target encoding in text mode")
}

func (e *encFlags) transcode() arcvfs.Transcode {
	if !e.text {
		return arcvfs.Binary
	}
	return arcvfs.AsText(e.from, e.to)
}

// target is a member of an archive named on the command line.
type target struct {
	h      arcvfs.Handler
	member string
	nested bool
}

func (a *app) resolve(name string) (target, error) {
	if !vpath.IsVirtual(name) {
		h, err := a.reg.Handler(name)
		return target{h: h}, err
	}
	p := vpath.Parse(name)
	h, err := a.reg.Resolve(p.ContainingArchivePath())
	if err != nil {
		return target{}, err
	}
	return target{
		h:      h,
		member: p.VirtualPart(),
		nested: vpath.IsVirtual(p.ContainingArchivePath()),
	}, nil
}

func (a *app) resolveWritable(name string) (target, error) {
	t, err := a.resolve(name)
	if err != nil {
		return target{}, err
	}
	if t.nested {
		return target{}, fmt.Errorf("%s: %w", name, errNestedReadOnly)
	}
	return t, nil
}

// existing returns the member t names, failing if it is absent.
func (t target) existing() (*arcvfs.VirtualChild, error) {
	vc := t.h.VirtualFile(t.member)
	if !vc.Exists() {
		return nil, &fs.PathError{Op: "stat", Path: vc.AbsolutePath(), Err: fs.ErrNotExist}
	}
	return vc, nil
}

func (a *app) existingFile(name string) (target, *arcvfs.VirtualChild, error) {
	t, err := a.resolve(name)
	if err != nil {
		return target{}, nil, err
	}
	vc, err := t.existing()
	if err != nil {
		return target{}, nil, err
	}
	if vc.IsDirectory {
		return target{}, nil, &fs.PathError{Op: "read", Path: vc.AbsolutePath(), Err: arcvfs.ErrIsDirectory}
	}
	return t, vc, nil
}

func cmdCreate(a *app, args []string) error {
	rest, err := parse(newFlags("create"), args, 1, -1)
	if err != nil {
		return err
	}
	for _, path := range rest {
		if err := a.reg.CreateEmptyArchive(path); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) printChild(vc *arcvfs.VirtualChild, name string, long bool) {
	if vc.IsDirectory && name != "" {
		name += "/"
	}
	if !long {
		fmt.Fprintln(a.out, name)
		return
	}
	kind := "-"
	if vc.IsDirectory {
		kind = "d"
	}
	fmt.Fprintf(a.out, "%s %12d %12d %s %s\n",
		kind, vc.Size, vc.CompressedSize, vc.ModTime.Format("2006-01-02 15:04"), name)
}

func cmdLs(a *app, args []string) error {
	fset := newFlags("ls")
	recursive := fset.Bool("r", false, "list every stored member beneath the path")
	long := fset.Bool("l", false, "long format")
	rest, err := parse(fset, args, 1, 1)
	if err != nil {
		return err
	}
	t, err := a.resolve(rest[0])
	if err != nil {
		return err
	}
	vc, err := t.existing()
	if err != nil {
		return err
	}
	if *recursive {
		for _, child := range t.h.VirtualChildrenList(t.member) {
			a.printChild(child, child.FullName, *long)
		}
		return nil
	}
	if !vc.IsDirectory {
		a.printChild(vc, vc.Name, *long)
		return nil
	}
	for _, child := range vc.Children() {
		a.printChild(child, child.Name, *long)
	}
	return nil
}

func cmdStat(a *app, args []string) error {
	rest, err := parse(newFlags("stat"), args, 1, 1)
	if err != nil {
		return err
	}
	t, err := a.resolve(rest[0])
	if err != nil {
		return err
	}
	vc, err := t.existing()
	if err != nil {
		return err
	}

	kind := "file"
	if vc.IsDirectory {
		kind = "directory"
	}
	field := func(k, v string) {
		if v != "" {
			fmt.Fprintf(a.out, "%-12s %s\n", k+":", v)
		}
	}
	field("path", vc.AbsolutePath())
	field("type", kind)
	field("modified", t.h.TimeStampFor(t.member).Format(time.RFC3339))
	if vc.IsDirectory {
		if t.member == "" {
			field("comment", t.h.ArchiveComment())
		}
		return nil
	}
	field("size", fmt.Sprint(t.h.SizeFor(t.member)))
	field("compressed", fmt.Sprint(t.h.CompressedSizeFor(t.member)))
	field("method", t.h.CompressionMethodFor(t.member))
	field("comment", t.h.CommentFor(t.member))

	paths, err := t.h.Files([]string{t.member})
	if err != nil {
		return err
	}
	defer os.Remove(paths[0])
	mt, err := mimetype.DetectFile(paths[0])
	if err != nil {
		return err
	}
	field("mime", mt.String())
	return nil
}

func cmdCat(a *app, args []string) error {
	fset := newFlags("cat")
	var enc encFlags
	enc.register(fset, a.cfg.TextEncoding, textenc.UTF8)
	rest, err := parse(fset, args, 1, -1)
	if err != nil {
		return err
	}
	for _, name := range rest {
		if err := a.cat(name, enc.transcode()); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) cat(name string, enc arcvfs.Transcode) error {
	t, _, err := a.existingFile(name)
	if err != nil {
		return err
	}

	// Binary content is served from the cache unless the member exceeds it.
	var path string
	if !enc.Text {
		path, err = a.cache.Fetch(t.h, t.member)
		if err != nil && !errors.Is(err, extractcache.ErrTooLarge) {
			return err
		}
	}
	if path == "" {
		tmp, err := os.CreateTemp(a.cfg.TempDir, "arcvfs-cat-*")
		if err != nil {
			return err
		}
		path = tmp.Name()
		tmp.Close()
		defer os.Remove(path)
		if err := t.h.ExtractVirtualFile(t.member, path, enc); err != nil {
			return err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(a.out, f)
	return err
}

func cmdExtract(a *app, args []string) error {
	fset := newFlags("extract")
	var enc encFlags
	enc.register(fset, a.cfg.TextEncoding, textenc.UTF8)
	rest, err := parse(fset, args, 1, 2)
	if err != nil {
		return err
	}
	dest := "."
	if len(rest) == 2 {
		dest = rest[1]
	}
	t, err := a.resolve(rest[0])
	if err != nil {
		return err
	}
	vc, err := t.existing()
	if err != nil {
		return err
	}
	if vc.IsDirectory {
		return t.h.ExtractVirtualDirectory(t.member, dest, "", enc.transcode())
	}
	return t.h.ExtractVirtualFile(t.member, filepath.Join(dest, vc.Name), enc.transcode())
}

func cmdAdd(a *app, args []string) error {
	fset := newFlags("add")
	var enc encFlags
	enc.register(fset, textenc.UTF8, a.cfg.TextEncoding)
	name := fset.String("name", "", "name inside the archive (single source only)")
	rest, err := parse(fset, args, 2, -1)
	if err != nil {
		return err
	}
	if *name != "" && len(rest) > 2 {
		return errors.New("add: -name needs exactly one source")
	}
	t, err := a.resolveWritable(rest[0])
	if err != nil {
		return err
	}
	items := make([]arcvfs.Item, 0, len(rest)-1)
	for _, src := range rest[1:] {
		items = append(items, arcvfs.Item{Source: src, Name: *name, Encoding: enc.transcode()})
	}
	return t.h.Add(t.member, items...)
}

// eachWritable runs fn on the member named by every argument.
func (a *app) eachWritable(cmd string, args []string, fn func(t target) error) error {
	rest, err := parse(newFlags(cmd), args, 1, -1)
	if err != nil {
		return err
	}
	for _, name := range rest {
		t, err := a.resolveWritable(name)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func cmdRm(a *app, args []string) error {
	return a.eachWritable("rm", args, func(t target) error {
		return t.h.Delete(t.member)
	})
}

func cmdMkdir(a *app, args []string) error {
	return a.eachWritable("mkdir", args, func(t target) error {
		return t.h.CreateFolder(t.member)
	})
}

func cmdTouch(a *app, args []string) error {
	return a.eachWritable("touch", args, func(t target) error {
		return t.h.CreateFile(t.member)
	})
}

func cmdMv(a *app, args []string) error {
	fset := newFlags("mv")
	full := fset.Bool("to", false, "treat the destination as the new full name")
	rest, err := parse(fset, args, 2, 2)
	if err != nil {
		return err
	}
	t, err := a.resolveWritable(rest[0])
	if err != nil {
		return err
	}
	if *full {
		return t.h.FullRename(t.member, rest[1])
	}
	return t.h.Move(t.member, rest[1])
}

func cmdRename(a *app, args []string) error {
	rest, err := parse(newFlags("rename"), args, 2, 2)
	if err != nil {
		return err
	}
	t, err := a.resolveWritable(rest[0])
	if err != nil {
		return err
	}
	return t.h.Rename(t.member, rest[1])
}

func cmdGrep(a *app, args []string) error {
	fset := newFlags("grep")
	regex := fset.Bool("regex", false, "treat the pattern as a regular expression")
	caseSensitive := fset.Bool("case", false, "match case")
	encoding := fset.String("encoding", "", "decode members from this encoding")
	glob := fset.String("glob", "", "only search members whose full name matches")
	rest, err := parse(fset, args, 2, 2)
	if err != nil {
		return err
	}

	var opts []arcvfs.MatcherOption
	if *regex {
		opts = append(opts, arcvfs.MatchRegex())
	}
	if *caseSensitive {
		opts = append(opts, arcvfs.MatchCaseSensitive())
	}
	if *encoding != "" {
		opts = append(opts, arcvfs.MatchEncoding(*encoding))
	}
	m, err := arcvfs.NewMatcher(rest[0], opts...)
	if err != nil {
		return err
	}
	if *glob != "" && !doublestar.ValidatePattern(*glob) {
		return fmt.Errorf("grep: %w: %s", doublestar.ErrBadPattern, *glob)
	}

	t, err := a.resolve(rest[1])
	if err != nil {
		return err
	}
	vc, err := t.existing()
	if err != nil {
		return err
	}
	if !vc.IsDirectory {
		for _, lm := range t.h.Search(t.member, m) {
			fmt.Fprintf(a.out, "%s:%d:%s\n", vc.FullName, lm.Number, lm.Line)
		}
		return nil
	}
	for _, fm := range arcvfs.SearchTree(t.h, t.member, *glob, m) {
		for _, lm := range fm.Lines {
			fmt.Fprintf(a.out, "%s:%d:%s\n", fm.FullName, lm.Number, lm.Line)
		}
	}
	return nil
}

func cmdFind(a *app, args []string) error {
	fset := newFlags("find")
	kind := fset.String("type", "", `"f" for files, "d" for directories`)
	rest, err := parse(fset, args, 2, 2)
	if err != nil {
		return err
	}
	glob := rest[0]
	if !doublestar.ValidatePattern(glob) {
		return fmt.Errorf("find: %w: %s", doublestar.ErrBadPattern, glob)
	}
	t, err := a.resolve(rest[1])
	if err != nil {
		return err
	}
	if _, err := t.existing(); err != nil {
		return err
	}
	for _, vc := range t.h.VirtualChildrenList(t.member) {
		if (*kind == "f" && vc.IsDirectory) || (*kind == "d" && !vc.IsDirectory) {
			continue
		}
		if ok, _ := doublestar.Match(glob, vc.FullName); ok {
			fmt.Fprintln(a.out, vc.FullName)
		}
	}
	return nil
}

func cmdClassify(a *app, args []string) error {
	rest, err := parse(newFlags("classify"), args, 1, -1)
	if err != nil {
		return err
	}
	for _, name := range rest {
		t, vc, err := a.existingFile(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\t%s\n", vc.FullName, t.h.Classification(t.member))
	}
	return nil
}

func cmdComment(a *app, args []string) error {
	rest, err := parse(newFlags("comment"), args, 1, 1)
	if err != nil {
		return err
	}
	t, err := a.resolve(rest[0])
	if err != nil {
		return err
	}
	if _, err := t.existing(); err != nil {
		return err
	}
	if t.member == "" {
		fmt.Fprintln(a.out, t.h.ArchiveComment())
		return nil
	}
	fmt.Fprintln(a.out, t.h.CommentFor(t.member))
	return nil
}

func cmdCache(a *app, args []string) error {
	fset := newFlags("cache")
	clearAll := fset.Bool("clear", false, "remove every cached file")
	prune := fset.Int64("prune", -1, "remove the oldest cached files until at most this many bytes remain")
	if _, err := parse(fset, args, 0, 0); err != nil {
		return err
	}
	switch {
	case *clearAll:
		if err := a.cache.Clear(); err != nil {
			return err
		}
	case *prune >= 0:
		freed, _, err := a.cache.Prune(*prune)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "freed %d bytes\n", freed)
	}
	size, err := a.cache.SizeBytes()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %d bytes\n", a.cache.Dir(), size)
	return nil
}
