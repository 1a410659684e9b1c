package bigfile

import "fmt"

// Key identifies one asset within an archive.
type Key uint32

// NoKey is the "absent" sentinel. It is never a valid key.
const NoKey Key = 0xFFFFFFFF

func (k Key) Valid() bool { return k != NoKey }

func (k Key) String() string { return fmt.Sprintf("0x%08x", uint32(k)) }

// TypeCode selects the archetype that decodes an asset.
type TypeCode uint16

func (t TypeCode) String() string { return fmt.Sprintf("0x%04x", uint16(t)) }

// FolderID indexes the folder table.
type FolderID uint16

// NoFolder marks "no parent" on roots and "no sibling" on last children.
const NoFolder FolderID = 0xFFFF

// NoOffset marks a stub file entry whose payload cannot be resolved.
const NoOffset uint32 = 0xFFFFFFFF

// Version is the container header format tag.
type Version uint16

const (
	VersionCompact  Version = 0x0022
	VersionExtended Version = 0x0029
)

const (
	folderRecordSize       = 64
	compactFileRecordSize  = 96
	extendedFileRecordSize = 100
)

func (v Version) Known() bool {
	return v == VersionCompact || v == VersionExtended
}

// FileRecordSize is the on-disk width of one file table record.
func (v Version) FileRecordSize() int {
	if v == VersionExtended {
		return extendedFileRecordSize
	}
	return compactFileRecordSize
}

// FolderRecordSize is the on-disk width of one folder table record. Both
// versions use 64 bytes; only the field order differs.
func (v Version) FolderRecordSize() int { return folderRecordSize }

func (v Version) String() string {
	switch v {
	case VersionCompact:
		return "compact"
	case VersionExtended:
		return "extended"
	default:
		return fmt.Sprintf("unknown(0x%04x)", uint16(v))
	}
}
