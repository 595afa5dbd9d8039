package arcvfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meigma/arcvfs/internal/fileutil"
	"github.com/meigma/arcvfs/internal/textenc"
	"github.com/meigma/arcvfs/vpath"
)

const (
	fileMode = fs.FileMode(0o644)
	dirMode  = fs.ModeDir | 0o755
)

// planBuilder accumulates one rewrite.
type planBuilder struct {
	a        *Archive
	plan     *Plan
	spools   []*fileutil.Spooled
	appended map[string]int // stored name -> index in plan.Append
}

func (a *Archive) newPlan() *planBuilder {
	p := NewPlan()
	p.Progress = a.progress
	return &planBuilder{a: a, plan: p, appended: map[string]int{}}
}

// release removes spooled content.
func (b *planBuilder) release() {
	for _, s := range b.spools {
		s.Remove()
	}
	b.spools = nil
}

// omit drops the stored records at and beneath fullName.
func (b *planBuilder) omit(fullName string) {
	for _, name := range b.a.recordsUnder(fullName) {
		b.plan.Omit[name] = true
	}
}

// displace makes room for a new member at fullName. An existing member of
// the other kind is dropped with its subtree; an existing directory that is
// replaced by a directory keeps its contents. Stored files on the ancestor
// path are dropped too.
func (b *planBuilder) displace(fullName string, isDir bool) {
	for _, anc := range vpath.Ancestors(fullName) {
		if e, ok := b.a.idx.Lookup(anc); ok && !e.IsDir {
			b.omit(anc)
		}
	}
	e, ok := b.a.idx.Lookup(fullName)
	if !ok {
		return
	}
	if e.IsDir && isDir {
		if name, ok := b.a.storedName(e); ok {
			b.plan.Omit[name] = true
		}
		return
	}
	b.omit(fullName)
}

// append queues add. A second addition under the same stored name replaces
// the first.
func (b *planBuilder) append(add Addition) {
	if i, ok := b.appended[add.Name]; ok {
		b.plan.Append[i] = add
		return
	}
	b.appended[add.Name] = len(b.plan.Append)
	b.plan.Append = append(b.plan.Append, add)
}

// addDir queues a directory record.
func (b *planBuilder) addDir(fullName string, modTime time.Time) {
	b.displace(fullName, true)
	b.append(Addition{Name: fullName + "/", ModTime: modTime, Mode: dirMode})
}

// addLocalFile queues the regular file at src.
func (b *planBuilder) addLocalFile(fullName, src string, info fs.FileInfo, enc Transcode) error {
	b.displace(fullName, false)
	add := Addition{Name: fullName, ModTime: info.ModTime(), Mode: info.Mode().Perm()}
	if !enc.Text {
		add.Size = info.Size()
		add.Open = func() (io.ReadCloser, error) { return os.Open(src) }
		b.append(add)
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	s, err := b.spool(f, enc)
	if err != nil {
		return err
	}
	add.Size = s.Size
	add.Open = s.Open
	b.append(add)
	return nil
}

// addReader queues the content of r as a regular file.
func (b *planBuilder) addReader(fullName string, r io.Reader, enc Transcode) error {
	b.displace(fullName, false)
	s, err := b.spool(r, enc)
	if err != nil {
		return err
	}
	b.append(Addition{
		Name:    fullName,
		ModTime: time.Now(),
		Mode:    fileMode,
		Size:    s.Size,
		Open:    s.Open,
	})
	return nil
}

// spool copies r to a temp file, transcoding it in text mode.
func (b *planBuilder) spool(r io.Reader, enc Transcode) (*fileutil.Spooled, error) {
	if enc.Text {
		tr, _, err := textenc.NewReader(r, sourceEncoding(enc), targetEncoding(enc))
		if err != nil {
			return nil, err
		}
		r = tr
	}
	s, err := fileutil.Spool(b.a.tempDir, r)
	if err != nil {
		return nil, err
	}
	b.spools = append(b.spools, s)
	return s, nil
}

// addItem queues a local file or directory tree at fullName.
func (b *planBuilder) addItem(fullName string, item Item) error {
	info, err := os.Stat(item.Source)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return &fs.PathError{Op: "add", Path: item.Source, Err: fs.ErrInvalid}
		}
		return b.addLocalFile(fullName, item.Source, info, item.Encoding)
	}

	b.addDir(fullName, info.ModTime())
	files, err := fileutil.ListTree(item.Source)
	if err != nil {
		return err
	}
	for _, f := range files {
		target := vpath.Join(fullName, f.Rel)
		fi, err := os.Stat(f.Path)
		if err != nil {
			return err
		}
		if f.IsDir {
			b.addDir(target, fi.ModTime())
			continue
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		if err := b.addLocalFile(target, f.Path, fi, item.Encoding); err != nil {
			return err
		}
	}
	return nil
}

// rewrite writes a new container transformed by b's plan and installs it
// in place of the archive file. The index is rebuilt afterwards.
func (a *Archive) rewrite(op string, b *planBuilder) error {
	defer b.release()

	p := b.plan
	err := fileutil.Commit(a.path, func(w io.Writer) error {
		if err := a.engine.Rewrite(a.path, w, p); err != nil {
			return err
		}
		a.progress.Report(ProgressEvent{Stage: StageCommitting, Path: a.path})
		return nil
	})
	a.invalidate()
	if err != nil {
		return a.fail(op, err)
	}

	a.log().Debug("rewrote archive",
		zap.String("archive", a.path),
		zap.String("op", op),
		zap.Int("omitted", len(p.Omit)),
		zap.Int("renamed", len(p.Rename)),
		zap.Int("appended", len(p.Append)))
	if err := a.load(); err != nil {
		return a.fail(op, err)
	}
	return nil
}

// prepare checks that the archive can be mutated and its index is current.
func (a *Archive) prepare(op string) error {
	if !a.engine.Writable() {
		return a.fail(op, ErrReadOnly)
	}
	if err := a.load(); err != nil {
		return a.fail(op, err)
	}
	return nil
}

// checkParent fails when a stored file lies on the ancestor path of fullName.
func (a *Archive) checkParent(fullName string) error {
	for _, anc := range vpath.Ancestors(fullName) {
		if e, ok := a.idx.Lookup(anc); ok && !e.IsDir {
			return &fs.PathError{Op: "create", Path: anc, Err: ErrNotDirectory}
		}
	}
	return nil
}

// leafName validates a single path segment.
func leafName(name string) (string, error) {
	clean := vpath.CleanMember(name)
	if clean == "" || clean == "." || clean == ".." || strings.Contains(clean, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// targetDir returns the cleaned directory virtualPath, failing if it names
// a file.
func (a *Archive) targetDir(virtualPath string) (string, error) {
	dir := vpath.CleanMember(virtualPath)
	if e, ok := a.idx.Lookup(dir); ok && !e.IsDir {
		return "", &fs.PathError{Op: "add", Path: dir, Err: ErrNotDirectory}
	}
	if err := a.checkParent(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// Add adds local files and directories beneath virtualPath.
func (a *Archive) Add(virtualPath string, items ...Item) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.prepare("add"); err != nil {
		return err
	}
	dir, err := a.targetDir(virtualPath)
	if err != nil {
		return a.fail("add", err)
	}

	b := a.newPlan()
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = filepath.Base(item.Source)
		}
		leaf, err := leafName(name)
		if err != nil {
			b.release()
			return a.fail("add", err)
		}
		if err := b.addItem(vpath.Join(dir, leaf), item); err != nil {
			b.release()
			return a.fail("add", err)
		}
	}
	if b.plan.Empty() {
		return nil
	}
	return a.rewrite("add", b)
}

// AddReader adds the content of r as virtualPath/name.
func (a *Archive) AddReader(r io.Reader, virtualPath, name string, enc Transcode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.prepare("add"); err != nil {
		return err
	}
	dir, err := a.targetDir(virtualPath)
	if err != nil {
		return a.fail("add", err)
	}
	leaf, err := leafName(name)
	if err != nil {
		return a.fail("add", err)
	}

	b := a.newPlan()
	if err := b.addReader(vpath.Join(dir, leaf), r, enc); err != nil {
		b.release()
		return a.fail("add", err)
	}
	return a.rewrite("add", b)
}

// Replace replaces the member at fullName with the local file or directory
// source, stored under name in the same parent. An empty name keeps the
// current leaf name.
func (a *Archive) Replace(fullName, source, name string, enc Transcode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.prepare("replace"); err != nil {
		return err
	}
	b, target, err := a.replacePlan(fullName, name)
	if err != nil {
		return a.fail("replace", err)
	}
	if err := b.addItem(target, Item{Source: source, Encoding: enc}); err != nil {
		b.release()
		return a.fail("replace", err)
	}
	return a.rewrite("replace", b)
}

// ReplaceReader replaces the member at fullName with the content of r.
func (a *Archive) ReplaceReader(fullName string, r io.Reader, name string, enc Transcode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.prepare("replace"); err != nil {
		return err
	}
	b, target, err := a.replacePlan(fullName, name)
	if err != nil {
		return a.fail("replace", err)
	}
	if err := b.addReader(target, r, enc); err != nil {
		b.release()
		return a.fail("replace", err)
	}
	return a.rewrite("replace", b)
}

// replacePlan starts a plan that removes the member at fullName, unless it
// is absent or keeps its name, and returns the full name of its successor.
func (a *Archive) replacePlan(fullName, name string) (*planBuilder, string, error) {
	fullName = vpath.CleanMember(fullName)
	parent, leaf := vpath.Split(fullName)
	if name != "" {
		var err error
		if leaf, err = leafName(name); err != nil {
			return nil, "", err
		}
	}
	if leaf == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidName, fullName)
	}
	if _, err := a.targetDir(parent); err != nil {
		return nil, "", err
	}

	b := a.newPlan()
	target := vpath.Join(parent, leaf)
	if target != fullName {
		if _, ok := a.idx.Lookup(fullName); ok {
			b.omit(fullName)
		}
	}
	return b, target, nil
}

// Delete removes the member at fullName and, for a directory, everything
// beneath it.
func (a *Archive) Delete(fullName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fullName = vpath.CleanMember(fullName)
	if fullName == "" {
		return a.fail("delete", fmt.Errorf("%w: archive root", ErrInvalidName))
	}
	if err := a.prepare("delete"); err != nil {
		return err
	}
	if _, ok := a.idx.Lookup(fullName); !ok {
		return a.fail("delete", &fs.PathError{Op: "delete", Path: fullName, Err: fs.ErrNotExist})
	}

	b := a.newPlan()
	b.omit(fullName)
	return a.rewrite("delete", b)
}

// Rename changes the leaf name of the member at fullName.
func (a *Archive) Rename(fullName, newName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	leaf, err := leafName(newName)
	if err != nil {
		return a.fail("rename", err)
	}
	parent, _ := vpath.Split(fullName)
	return a.fullRename("rename", fullName, vpath.Join(parent, leaf))
}

// Move moves the member at fullName into the directory destDir.
func (a *Archive) Move(fullName, destDir string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, leaf := vpath.Split(fullName)
	return a.fullRename("move", fullName, vpath.Join(destDir, leaf))
}

// FullRename moves the member at fullName to newFullName, carrying a
// directory's descendants with it.
func (a *Archive) FullRename(fullName, newFullName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.fullRename("rename", fullName, newFullName)
}

func (a *Archive) fullRename(op, fullName, newFullName string) error {
	from := vpath.CleanMember(fullName)
	to := vpath.CleanMember(newFullName)
	if from == "" || to == "" {
		return a.fail(op, fmt.Errorf("%w: archive root", ErrInvalidName))
	}
	if err := a.prepare(op); err != nil {
		return err
	}
	e, ok := a.idx.Lookup(from)
	if !ok {
		return a.fail(op, &fs.PathError{Op: op, Path: from, Err: fs.ErrNotExist})
	}
	if from == to {
		return nil
	}
	if _, ok := a.idx.Lookup(to); ok {
		return a.fail(op, &fs.PathError{Op: op, Path: to, Err: fs.ErrExist})
	}
	if e.IsDir && vpath.HasPrefix(to, from) {
		return a.fail(op, fmt.Errorf("%w: %s is inside %s", ErrInvalidName, to, from))
	}
	if err := a.checkParent(to); err != nil {
		return a.fail(op, err)
	}

	b := a.newPlan()
	for _, name := range a.recordsUnder(from) {
		m := a.members[name]
		renamed := to + strings.TrimPrefix(m.FullName(), from)
		if m.IsDir() {
			renamed += "/"
		}
		b.plan.Rename[name] = renamed
	}
	if e.Synthetic && len(b.plan.Rename) == 0 {
		return nil
	}
	return a.rewrite(op, b)
}

// CreateFolder creates an empty directory member at fullName.
func (a *Archive) CreateFolder(fullName string) error {
	return a.create("mkdir", fullName, true)
}

// CreateFile creates an empty file member at fullName.
func (a *Archive) CreateFile(fullName string) error {
	return a.create("touch", fullName, false)
}

func (a *Archive) create(op, fullName string, isDir bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fullName = vpath.CleanMember(fullName)
	if fullName == "" {
		return a.fail(op, fmt.Errorf("%w: archive root", ErrInvalidName))
	}
	if err := a.prepare(op); err != nil {
		return err
	}
	if _, ok := a.idx.Lookup(fullName); ok {
		return a.fail(op, &fs.PathError{Op: op, Path: fullName, Err: fs.ErrExist})
	}
	if err := a.checkParent(fullName); err != nil {
		return a.fail(op, err)
	}

	b := a.newPlan()
	add := Addition{Name: fullName, ModTime: time.Now(), Mode: fileMode}
	if isDir {
		add.Name += "/"
		add.Mode = dirMode
	}
	b.append(add)
	return a.rewrite(op, b)
}
