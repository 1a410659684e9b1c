package bigfile

import "time"

const (
	folderNameWidth = 50
	fileNameWidth   = 60
)

// FolderEntry is one node of the folder tree. The tree is stored intrusively:
// each node points at its parent, its first child and its next sibling by id.
type FolderEntry struct {
	ID          FolderID
	Unknown     [4]uint16
	Parent      FolderID
	FirstChild  FolderID
	NextSibling FolderID
	Name        string

	NameErr error
}

// Decode reads one folder record. Compact places two of the unknown fields
// after the name, Extended places all four before the links.
func (f *FolderEntry) Decode(src []byte, v Version) error {
	c := NewCursor(src)
	f.Unknown[0] = c.Uint16()
	f.Unknown[1] = c.Uint16()
	if v == VersionExtended {
		f.Unknown[2] = c.Uint16()
		f.Unknown[3] = c.Uint16()
	}
	f.Parent = FolderID(c.Uint16())
	f.FirstChild = FolderID(c.Uint16())
	f.NextSibling = FolderID(c.Uint16())
	name := c.Bytes(folderNameWidth)
	if v != VersionExtended {
		f.Unknown[2] = c.Uint16()
		f.Unknown[3] = c.Uint16()
	}
	if err := c.Err(); err != nil {
		return err
	}
	f.Name, f.NameErr = DecodeName(name)
	return nil
}

func (f *FolderEntry) IsRoot() bool { return f.Parent == NoFolder }

// FileEntry is the directory record of one asset. It is immutable once the
// metadata is loaded.
type FileEntry struct {
	Offset    uint32 // Relative to the data region; NoOffset for stubs
	Key       Key
	Unknown0  int32
	Type      TypeCode
	Folder    FolderID
	Timestamp int32
	Flags     int32
	Unknown1  int32
	Checksum  [4]byte
	Name      string
	Unknown2  int32
	Zipped    bool // Extended only

	NameErr error
}

func (f *FileEntry) Decode(src []byte, v Version) error {
	c := NewCursor(src)
	f.Offset = c.Uint32()
	f.Key = Key(c.Uint32())
	f.Unknown0 = c.Int32()
	f.Type = TypeCode(c.Uint16())
	f.Folder = FolderID(c.Uint16())
	f.Timestamp = c.Int32()
	f.Flags = c.Int32()
	f.Unknown1 = c.Int32()
	copy(f.Checksum[:], c.Bytes(4))
	name := c.Bytes(fileNameWidth)
	f.Unknown2 = c.Int32()
	if v == VersionExtended {
		f.Zipped = c.Int32() != 0
	}
	if err := c.Err(); err != nil {
		return err
	}
	f.Name, f.NameErr = DecodeName(name)
	return nil
}

// Stub reports whether the entry has no resolvable payload.
func (f *FileEntry) Stub() bool { return f.Offset == NoOffset }

func (f *FileEntry) ModTime() time.Time {
	return time.Unix(int64(f.Timestamp), 0).UTC()
}
