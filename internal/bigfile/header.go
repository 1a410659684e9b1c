package bigfile

const (
	// Signature(4) + 4 x u8 + 5 x u64 = 48 bytes
	SegmentHeaderSize = 48
	// Version(2) + NumFolders(2) + NumFiles(4) + pad(8) + LoadPriority(4) +
	// AutoActivate(1) + pad(3) + RootPath(64) = 88 bytes
	ContainerHeaderSize = 88

	MinHeaderOffset = 48
	MaxHeaderOffset = 163840

	rootPathWidth = 64
)

// Signature opens every segment.
var Signature = [4]byte{'Y', 'B', 'I', 'G'}

// SegmentHeader describes one physical segment of an archive.
type SegmentHeader struct {
	Signature      [4]byte
	Unknown0       uint8
	NumSegments    uint8
	SegmentIndex   uint8
	Unknown1       uint8
	InternalOffset uint64
	HeaderOffset   uint64 // Absolute position of the ContainerHeader
	PrevTotalLen   uint64
	TotalLen       uint64
	LastUpdate     uint64
}

// Decode reads the fixed record. It checks only the length; Validate checks
// the values.
func (h *SegmentHeader) Decode(src []byte) error {
	c := NewCursor(src)
	copy(h.Signature[:], c.Bytes(4))
	h.Unknown0 = c.Uint8()
	h.NumSegments = c.Uint8()
	h.SegmentIndex = c.Uint8()
	h.Unknown1 = c.Uint8()
	h.InternalOffset = c.Uint64()
	h.HeaderOffset = c.Uint64()
	h.PrevTotalLen = c.Uint64()
	h.TotalLen = c.Uint64()
	h.LastUpdate = c.Uint64()
	return c.Err()
}

func (h *SegmentHeader) Validate() error {
	if h.Signature != Signature {
		return formatErrorf("segment header", "bad signature %q", h.Signature[:])
	}
	if h.SegmentIndex >= h.NumSegments {
		return formatErrorf("segment header", "segment index %d out of range (%d segments)",
			h.SegmentIndex, h.NumSegments)
	}
	if h.HeaderOffset < MinHeaderOffset || h.HeaderOffset > MaxHeaderOffset {
		return formatErrorf("segment header", "header offset %d outside [%d, %d]",
			h.HeaderOffset, MinHeaderOffset, MaxHeaderOffset)
	}
	return nil
}

// ContainerHeader sits at SegmentHeader.HeaderOffset and sizes the tables
// that follow it.
type ContainerHeader struct {
	Version      Version
	NumFolders   uint16
	NumFiles     uint32
	LoadPriority uint32
	AutoActivate bool
	RootPath     string

	// RootPathErr keeps the ErrEncoding raised while decoding RootPath, if any.
	RootPathErr error
}

func (h *ContainerHeader) Decode(src []byte) error {
	c := NewCursor(src)
	h.Version = Version(c.Uint16())
	h.NumFolders = c.Uint16()
	h.NumFiles = c.Uint32()
	c.Skip(8)
	h.LoadPriority = c.Uint32()
	h.AutoActivate = c.Uint8() != 0
	c.Skip(3)
	name := c.Bytes(rootPathWidth)
	if err := c.Err(); err != nil {
		return err
	}
	if !h.Version.Known() {
		return formatErrorf("container header", "unsupported version %s", h.Version)
	}
	h.RootPath, h.RootPathErr = DecodeName(name)
	return nil
}

// TablesSize is the byte length of the file and folder tables.
func (h *ContainerHeader) TablesSize() int64 {
	return int64(h.NumFiles)*int64(h.Version.FileRecordSize()) +
		int64(h.NumFolders)*int64(h.Version.FolderRecordSize())
}
