package bigfile

import (
	"io"

	"github.com/pkg/errors"
)

/*
  ARCHIVE LAYOUT
  ------------------------------------------------------------------
  0                  SegmentHeader (48 bytes, "YBIG")
  HeaderOffset       ContainerHeader (88 bytes)
  +88                File table   (NumFiles x 96|100 bytes)
  ...                Folder table (NumFolders x 64 bytes)
  data base          Data region. FileEntry.Offset is relative to here.

  Every payload starts with its reference list:
    i32 N, then N x u32 keys, then type-specific bytes.
  A payload ends where the next larger offset begins, or at the end of the
  segment for the last one.
*/

// ReadSegmentHeader seeks to the start of r and reads the segment header.
func ReadSegmentHeader(r io.ReadSeeker) (SegmentHeader, error) {
	var h SegmentHeader
	buf, err := readAt(r, 0, SegmentHeaderSize, "read segment header")
	if err != nil {
		return h, err
	}
	if err := h.Decode(buf); err != nil {
		return h, err
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// ReadContainerHeader seeks to seg.HeaderOffset and reads the container
// header. On success r is positioned at the start of the file table.
func ReadContainerHeader(r io.ReadSeeker, seg SegmentHeader) (ContainerHeader, error) {
	var h ContainerHeader
	buf, err := readAt(r, int64(seg.HeaderOffset), ContainerHeaderSize, "read container header")
	if err != nil {
		return h, err
	}
	if err := h.Decode(buf); err != nil {
		return h, err
	}
	return h, nil
}

// maxPrealloc caps the records allocated ahead of reading them. Header
// counts are untrusted; tables larger than this grow as records arrive.
const maxPrealloc = 4096

// ReadFileTable reads hdr.NumFiles records from the current position of r.
func ReadFileTable(r io.Reader, hdr ContainerHeader) ([]FileEntry, error) {
	n := hdr.NumFiles
	files := make([]FileEntry, 0, min(n, maxPrealloc))
	buf := make([]byte, hdr.Version.FileRecordSize())
	for i := range n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ioError("read file table", errors.Wrapf(err, "record %d of %d", i, n))
		}
		var f FileEntry
		if err := f.Decode(buf, hdr.Version); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// ReadFolderTable reads hdr.NumFolders records from the current position of r.
func ReadFolderTable(r io.Reader, hdr ContainerHeader) ([]FolderEntry, error) {
	n := hdr.NumFolders
	folders := make([]FolderEntry, 0, min(n, maxPrealloc))
	buf := make([]byte, hdr.Version.FolderRecordSize())
	for i := range n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ioError("read folder table", errors.Wrapf(err, "record %d of %d", i, n))
		}
		f := FolderEntry{ID: FolderID(i)}
		if err := f.Decode(buf, hdr.Version); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, nil
}

func readAt(r io.ReadSeeker, pos int64, n int, op string) ([]byte, error) {
	if _, err := r.Seek(pos, io.SeekStart); err != nil {
		return nil, ioError(op, errors.Wrapf(err, "seek to %d", pos))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ioError(op, errors.Wrapf(err, "at %d", pos))
	}
	return buf, nil
}
