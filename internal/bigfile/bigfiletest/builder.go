// Package bigfiletest builds synthetic archives for tests.
package bigfiletest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/mvaleed/bigfile/internal/bigfile"
)

// Folder describes one folder record. Parent is an index into Builder.Folders
// or bigfile.NoFolder. FirstChild and NextSibling are derived unless
// RawLinks is set.
type Folder struct {
	Name        string
	Parent      bigfile.FolderID
	FirstChild  bigfile.FolderID
	NextSibling bigfile.FolderID
	RawLinks    bool
	RawName     []byte // Written instead of Name when set
}

// File describes one asset. The payload is the reference preamble built from
// Refs followed by Body, unless Raw is set.
type File struct {
	Key    bigfile.Key
	Type   bigfile.TypeCode
	Folder bigfile.FolderID
	Name   string
	Time   int32
	Flags  int32
	Refs   []bigfile.Key
	Body   []byte
	Raw    []byte // Full payload, preamble included
	Stub   bool   // Writes bigfile.NoOffset
	Zip    bool   // Extended only
}

type Builder struct {
	Version      bigfile.Version
	HeaderOffset uint64 // Defaults to SegmentHeaderSize
	NumSegments  uint8  // Defaults to 1
	SegmentIndex uint8
	LoadPriority uint32
	AutoActivate bool
	RootPath     string
	Folders      []Folder
	Files        []File
}

func New(v bigfile.Version) *Builder {
	return &Builder{Version: v, RootPath: "data"}
}

func (b *Builder) AddFolder(name string, parent bigfile.FolderID) bigfile.FolderID {
	b.Folders = append(b.Folders, Folder{Name: name, Parent: parent})
	return bigfile.FolderID(len(b.Folders) - 1)
}

func (b *Builder) AddFile(f File) *Builder {
	b.Files = append(b.Files, f)
	return b
}

// Payload encodes a reference preamble followed by body.
func Payload(refs []bigfile.Key, body []byte) []byte {
	buf := make([]byte, 4+4*len(refs), 4+4*len(refs)+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(refs)))
	for i, r := range refs {
		binary.LittleEndian.PutUint32(buf[4+4*i:], uint32(r))
	}
	return append(buf, body...)
}

// Bytes renders the archive.
func (b *Builder) Bytes() []byte {
	headerOffset := b.HeaderOffset
	if headerOffset == 0 {
		headerOffset = bigfile.SegmentHeaderSize
	}
	numSegments := b.NumSegments
	if numSegments == 0 {
		numSegments = 1
	}

	var data bytes.Buffer
	offsets := make([]uint32, len(b.Files))
	for i, f := range b.Files {
		if f.Stub {
			offsets[i] = bigfile.NoOffset
			continue
		}
		payload := f.Raw
		if payload == nil {
			payload = Payload(f.Refs, f.Body)
		}
		if f.Zip {
			payload = deflate(payload)
		}
		offsets[i] = uint32(data.Len())
		data.Write(payload)
	}

	var out bytes.Buffer
	seg := make([]byte, bigfile.SegmentHeaderSize)
	copy(seg[0:4], bigfile.Signature[:])
	seg[5] = numSegments
	seg[6] = b.SegmentIndex
	binary.LittleEndian.PutUint64(seg[16:24], headerOffset)
	binary.LittleEndian.PutUint64(seg[32:40], uint64(data.Len()))
	out.Write(seg)
	if pad := int(headerOffset) - out.Len(); pad > 0 {
		out.Write(make([]byte, pad))
	}

	hdr := make([]byte, bigfile.ContainerHeaderSize)
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(b.Version))
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(b.Folders)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(b.Files)))
	binary.LittleEndian.PutUint32(hdr[16:20], b.LoadPriority)
	if b.AutoActivate {
		hdr[20] = 1
	}
	copy(hdr[24:88], b.RootPath)
	out.Write(hdr)

	for i, f := range b.Files {
		out.Write(b.fileRecord(f, offsets[i]))
	}
	links := b.links()
	for i, f := range b.Folders {
		out.Write(b.folderRecord(f, links[i]))
	}
	out.Write(data.Bytes())
	return out.Bytes()
}

// WriteFile renders the archive into a temp dir and returns its path.
func (b *Builder) WriteFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.big")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

// Container opens the rendered archive from memory with metadata loaded.
func (b *Builder) Container(t testing.TB, opts ...bigfile.Option) *bigfile.Container {
	t.Helper()
	raw := b.Bytes()
	c := bigfile.New(bytes.NewReader(raw), int64(len(raw)), opts...)
	if err := c.LoadMetadata(); err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	return c
}

func (b *Builder) fileRecord(f File, offset uint32) []byte {
	rec := make([]byte, b.Version.FileRecordSize())
	binary.LittleEndian.PutUint32(rec[0:4], offset)
	binary.LittleEndian.PutUint32(rec[4:8], uint32(f.Key))
	binary.LittleEndian.PutUint16(rec[12:14], uint16(f.Type))
	binary.LittleEndian.PutUint16(rec[14:16], uint16(f.Folder))
	binary.LittleEndian.PutUint32(rec[16:20], uint32(f.Time))
	binary.LittleEndian.PutUint32(rec[20:24], uint32(f.Flags))
	copy(rec[32:92], f.Name)
	if b.Version == bigfile.VersionExtended && f.Zip {
		binary.LittleEndian.PutUint32(rec[96:100], 1)
	}
	return rec
}

type link struct{ firstChild, nextSibling bigfile.FolderID }

// links derives the intrusive child/sibling chain in folder order.
func (b *Builder) links() []link {
	out := make([]link, len(b.Folders))
	last := make(map[bigfile.FolderID]int)
	for i := range out {
		out[i] = link{bigfile.NoFolder, bigfile.NoFolder}
	}
	for i, f := range b.Folders {
		if f.Parent == bigfile.NoFolder {
			continue
		}
		if prev, ok := last[f.Parent]; ok {
			out[prev].nextSibling = bigfile.FolderID(i)
		} else if int(f.Parent) < len(out) {
			out[f.Parent].firstChild = bigfile.FolderID(i)
		}
		last[f.Parent] = i
	}
	for i, f := range b.Folders {
		if f.RawLinks {
			out[i] = link{f.FirstChild, f.NextSibling}
		}
	}
	return out
}

func (b *Builder) folderRecord(f Folder, l link) []byte {
	rec := make([]byte, b.Version.FolderRecordSize())
	pos := 4
	if b.Version == bigfile.VersionExtended {
		pos = 8
	}
	binary.LittleEndian.PutUint16(rec[pos:], uint16(f.Parent))
	binary.LittleEndian.PutUint16(rec[pos+2:], uint16(l.firstChild))
	binary.LittleEndian.PutUint16(rec[pos+4:], uint16(l.nextSibling))
	name := []byte(f.Name)
	if f.RawName != nil {
		name = f.RawName
	}
	copy(rec[pos+6:pos+6+50], name)
	return rec
}

func deflate(p []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(p)
	w.Close()
	return buf.Bytes()
}
