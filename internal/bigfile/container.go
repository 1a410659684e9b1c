// Package bigfile reads YBIG packed-asset archives: the segment and container
// headers, the file and folder tables, and the payload bytes of each asset.
//
// A Container is not safe for concurrent use. All reads share one source and
// callers must serialize them.
package bigfile

import (
	"bytes"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mvaleed/bigfile/internal/storage/mmap"
)

// slicer is implemented by sources that can hand out zero-copy views.
type slicer interface {
	Slice(offset int64, length int) ([]byte, error)
}

// DefaultMaxInflatedSize bounds a zipped payload once inflated.
const DefaultMaxInflatedSize = 256 << 20

type options struct {
	log             *zap.Logger
	noMmap          bool
	pathCacheSize   int
	maxInflatedSize int64
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithoutMmap makes Open read through the *os.File instead of a memory map.
func WithoutMmap() Option {
	return func(o *options) { o.noMmap = true }
}

func WithPathCacheSize(n int) Option {
	return func(o *options) { o.pathCacheSize = n }
}

// WithMaxInflatedSize limits how large a zipped payload may grow when
// inflated. Larger payloads fail with ErrIO.
func WithMaxInflatedSize(n int64) Option {
	return func(o *options) { o.maxInflatedSize = n }
}

// Container is an open archive. It owns the source, the tables and the tree.
type Container struct {
	src    io.ReaderAt
	closer io.Closer
	size   int64
	log    *zap.Logger
	opts   options

	segment SegmentHeader
	header  ContainerHeader
	files   []FileEntry
	byKey   map[Key]int
	folders []FolderEntry
	tree    *Tree

	dataBase int64
	extents  *extentIndex
	loaded   bool
}

// Open opens the archive at path. Metadata is read by LoadMetadata.
func Open(path string, opts ...Option) (*Container, error) {
	o := buildOptions(opts)
	if o.noMmap {
		f, err := os.Open(path)
		if err != nil {
			return nil, ioError("open", err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, ioError("open", err)
		}
		c := newContainer(f, info.Size(), o)
		c.closer = f
		return c, nil
	}

	store, err := mmap.NewMmapStore(path)
	if err != nil {
		return nil, ioError("open", err)
	}
	c := newContainer(store, store.Size(), o)
	c.closer = store
	return c, nil
}

// New wraps an already open source of the given size. The caller keeps
// ownership of src.
func New(src io.ReaderAt, size int64, opts ...Option) *Container {
	return newContainer(src, size, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop(), maxInflatedSize: DefaultMaxInflatedSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newContainer(src io.ReaderAt, size int64, o options) *Container {
	return &Container{
		src:  src,
		size: size,
		log:  o.log,
		opts: o,
	}
}

// LoadMetadata reads the segment header, container header, file table and
// folder table, then builds the payload index and the folder tree. Any
// failure is fatal for the container.
func (c *Container) LoadMetadata() error {
	r := io.NewSectionReader(c.src, 0, c.size)

	segment, err := ReadSegmentHeader(r)
	if err != nil {
		return err
	}
	header, err := ReadContainerHeader(r, segment)
	if err != nil {
		return err
	}
	if header.RootPathErr != nil {
		c.log.Warn("undecodable root path", zap.String("root_path", header.RootPath), zap.Error(header.RootPathErr))
	}
	dataBase := int64(segment.HeaderOffset) + ContainerHeaderSize + header.TablesSize()
	if dataBase > c.size {
		return ioError("read tables", errors.Wrapf(io.ErrUnexpectedEOF,
			"%d files and %d folders end at %d, source has %d bytes",
			header.NumFiles, header.NumFolders, dataBase, c.size))
	}
	files, err := ReadFileTable(r, header)
	if err != nil {
		return err
	}
	folders, err := ReadFolderTable(r, header)
	if err != nil {
		return err
	}

	byKey := make(map[Key]int, len(files))
	for i := range files {
		if files[i].NameErr != nil {
			c.log.Warn("undecodable file name",
				zap.Stringer("key", files[i].Key), zap.String("name", files[i].Name), zap.Error(files[i].NameErr))
		}
		if !files[i].Key.Valid() {
			continue
		}
		if prev, dup := byKey[files[i].Key]; dup {
			c.log.Warn("duplicate key in file table",
				zap.Stringer("key", files[i].Key), zap.Int("first", prev), zap.Int("second", i))
			continue
		}
		byKey[files[i].Key] = i
	}
	for i := range folders {
		if folders[i].NameErr != nil {
			c.log.Warn("undecodable folder name",
				zap.Int("folder", i), zap.String("name", folders[i].Name), zap.Error(folders[i].NameErr))
		}
	}

	tree, err := BuildTree(folders, files, c.opts.pathCacheSize)
	if err != nil {
		return err
	}

	dataLen := c.size - dataBase

	c.segment = segment
	c.header = header
	c.files = files
	c.byKey = byKey
	c.folders = folders
	c.tree = tree
	c.dataBase = dataBase
	c.extents = newExtentIndex(files, dataLen)
	c.loaded = true

	c.log.Debug("loaded metadata",
		zap.Stringer("version", header.Version),
		zap.Uint32("files", header.NumFiles),
		zap.Uint16("folders", header.NumFolders),
		zap.Int64("data_base", dataBase))
	return nil
}

// MetadataLoaded reports whether LoadMetadata has succeeded.
func (c *Container) MetadataLoaded() bool { return c.loaded }

func (c *Container) Segment() SegmentHeader { return c.segment }

func (c *Container) Header() ContainerHeader { return c.header }

// Entries returns the file table in on-disk order.
func (c *Container) Entries() []FileEntry { return c.files }

func (c *Container) Folders() []FolderEntry { return c.folders }

func (c *Container) Tree() *Tree { return c.tree }

func (c *Container) Folder(id FolderID) (FolderEntry, bool) {
	if c.tree == nil {
		return FolderEntry{}, false
	}
	return c.tree.Folder(id)
}

func (c *Container) Entry(key Key) (FileEntry, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return FileEntry{}, false
	}
	return c.files[i], true
}

// IsKeyValid reports whether key has a file entry with a resolvable payload.
func (c *Container) IsKeyValid(key Key) bool {
	e, ok := c.Entry(key)
	return ok && !e.Stub()
}

// PayloadSize is the on-disk (possibly compressed) size of the payload.
func (c *Container) PayloadSize(key Key) (int64, error) {
	_, start, end, err := c.span(key)
	if err != nil {
		return 0, err
	}
	return end - start, nil
}

func (c *Container) span(key Key) (FileEntry, int64, int64, error) {
	if !key.Valid() {
		return FileEntry{}, 0, 0, newError("payload", ErrNotFound, key, nil)
	}
	e, ok := c.Entry(key)
	if !ok {
		return e, 0, 0, newError("payload", ErrNotFound, key, errors.New("no file entry"))
	}
	if e.Stub() {
		return e, 0, 0, newError("payload", ErrNotFound, key, errors.New("stub entry"))
	}
	start, end, ok := c.extents.extent(e.Offset)
	if !ok {
		return e, 0, 0, newError("payload", ErrIO, key,
			errors.Errorf("offset %d beyond data region of %d bytes", e.Offset, c.extents.end))
	}
	return e, start, end, nil
}

// Payload returns the payload bytes for key, inflated when the entry is
// zipped. Bytes from a memory-mapped source are only valid until Close;
// callers that keep them must copy.
func (c *Container) Payload(key Key) ([]byte, error) {
	e, start, end, err := c.span(key)
	if err != nil {
		return nil, err
	}
	raw, err := c.read(c.dataBase+start, int(end-start))
	if err != nil {
		return nil, newError("payload", ErrIO, key, err)
	}
	if !e.Zipped {
		return raw, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, newError("inflate payload", ErrIO, key, errors.WithStack(err))
	}
	defer zr.Close()
	limit := c.opts.maxInflatedSize
	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, newError("inflate payload", ErrIO, key, errors.WithStack(err))
	}
	if int64(len(out)) > limit {
		return nil, newError("inflate payload", ErrIO, key,
			errors.Errorf("inflated size exceeds %d bytes", limit))
	}
	return out, nil
}

func (c *Container) read(pos int64, n int) ([]byte, error) {
	if s, ok := c.src.(slicer); ok {
		return s.Slice(pos, n)
	}
	buf := make([]byte, n)
	read, err := c.src.ReadAt(buf, pos)
	if err != nil && !(errors.Is(err, io.EOF) && read == n) {
		return nil, errors.Wrapf(err, "read %d bytes at %d", n, pos)
	}
	return buf, nil
}

// Close releases the source when the container opened it.
func (c *Container) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	if err != nil {
		return ioError("close", err)
	}
	return nil
}
