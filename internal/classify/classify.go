// Package classify assigns a coarse classification to archive members.
//
// Only Java class files get more than the generic [File] classification: a
// class declaring "public static void main(String[])" is reported as
// "executable(java:<qualified.ClassName>)".
package classify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is the generic classification.
const File = "file"

// maxClassSize bounds how much of a member is read for parsing.
const maxClassSize = 16 << 20

const javaClassMIME = "application/x-java-applet"

const (
	accPublic = 0x0001
	accStatic = 0x0008

	mainName       = "main"
	mainDescriptor = "([Ljava/lang/String;)V"
)

// Classify returns the classification of the member name whose content is r.
// Any read or parse failure yields File.
func Classify(name string, r io.Reader) string {
	if !strings.HasSuffix(strings.ToLower(name), ".class") {
		return File
	}
	data, err := io.ReadAll(io.LimitReader(r, maxClassSize))
	if err != nil {
		return File
	}
	if !mimetype.Detect(data).Is(javaClassMIME) {
		return File
	}
	info, err := ParseClass(data)
	if err != nil || !info.HasMain {
		return File
	}
	return "executable(java:" + info.Name + ")"
}

// ClassInfo is the subset of a class file needed for classification.
type ClassInfo struct {
	// Name is the binary class name with dots, e.g. "com.example.App".
	Name string

	// HasMain reports a public static main(String[]) method.
	HasMain bool
}

var errTruncated = errors.New("classify: truncated class file")

type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.off+n > len(c.b) {
		c.err = errTruncated
		return nil
	}
	s := c.b[c.off : c.off+n]
	c.off += n
	return s
}

func (c *cursor) u1() uint8 {
	if s := c.take(1); s != nil {
		return s[0]
	}
	return 0
}

func (c *cursor) u2() uint16 {
	if s := c.take(2); s != nil {
		return binary.BigEndian.Uint16(s)
	}
	return 0
}

func (c *cursor) u4() uint32 {
	if s := c.take(4); s != nil {
		return binary.BigEndian.Uint32(s)
	}
	return 0
}

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

type constant struct {
	tag  uint8
	utf8 string
	ref  uint16
}

// ParseClass decodes the constant pool, class name and method table of a
// class file.
func ParseClass(data []byte) (*ClassInfo, error) {
	c := &cursor{b: data}
	if magic := c.u4(); magic != 0xCAFEBABE {
		if c.err != nil {
			return nil, c.err
		}
		return nil, fmt.Errorf("classify: bad magic %#x", magic)
	}
	c.take(4) // minor and major version

	pool, err := readPool(c)
	if err != nil {
		return nil, err
	}

	c.u2() // access flags
	thisClass := c.u2()
	c.u2() // super class
	c.take(2 * int(c.u2()))

	skipMembers(c) // fields
	info := &ClassInfo{}
	for n := c.u2(); n > 0 && c.err == nil; n-- {
		flags := c.u2()
		name := pool.utf8(c.u2())
		desc := pool.utf8(c.u2())
		skipAttributes(c)
		if name == mainName && desc == mainDescriptor && flags&(accPublic|accStatic) == accPublic|accStatic {
			info.HasMain = true
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	className, ok := pool.className(thisClass)
	if !ok {
		return nil, errors.New("classify: invalid this_class index")
	}
	info.Name = strings.ReplaceAll(className, "/", ".")
	return info, nil
}

type constantPool []constant

func (p constantPool) utf8(i uint16) string {
	if int(i) >= len(p) || p[i].tag != tagUtf8 {
		return ""
	}
	return p[i].utf8
}

func (p constantPool) className(i uint16) (string, bool) {
	if int(i) >= len(p) || p[i].tag != tagClass {
		return "", false
	}
	name := p.utf8(p[i].ref)
	return name, name != ""
}

func readPool(c *cursor) (constantPool, error) {
	count := int(c.u2())
	pool := make(constantPool, count)
	for i := 1; i < count && c.err == nil; i++ {
		tag := c.u1()
		pool[i].tag = tag
		switch tag {
		case tagUtf8:
			pool[i].utf8 = string(c.take(int(c.u2())))
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			pool[i].ref = c.u2()
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			c.take(4)
		case tagMethodHandle:
			c.take(3)
		case tagLong, tagDouble:
			c.take(8)
			i++ // occupies two slots
		default:
			return nil, fmt.Errorf("classify: unknown constant tag %d at index %d", tag, i)
		}
	}
	return pool, c.err
}

func skipMembers(c *cursor) {
	for n := c.u2(); n > 0 && c.err == nil; n-- {
		c.take(6) // access flags, name index, descriptor index
		skipAttributes(c)
	}
}

func skipAttributes(c *cursor) {
	for n := c.u2(); n > 0 && c.err == nil; n-- {
		c.u2()
		c.take(int(c.u4()))
	}
}
