package ziptype

import "strings"

// Method identifies the compression method of an archive member.
// Values follow the ZIP specification's method numbering.
type Method uint16

const (
	MethodStore   Method = 0
	MethodDeflate Method = 8
	MethodZstd    Method = 93
)

// String returns the human-readable name of the compression method.
func (m Method) String() string {
	switch m {
	case MethodStore:
		return "store"
	case MethodDeflate:
		return "deflate"
	case MethodZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// FlagDescriptor is the general-purpose flag bit indicating that sizes and
// CRC were written in a trailing data descriptor rather than the local header.
const FlagDescriptor = 0x8

// Entry is the persisted replacement for one central directory record.
//
// Entries are produced in archive-scan order during a single build pass and
// are immutable once persisted.
type Entry struct {
	// Name is the archive-declared path, byte for byte. It is not
	// filesystem-normalized; lookups match it exactly.
	Name string

	// Seq is the zero-based position of the entry in archive-scan order.
	Seq uint64

	// HeaderOffset is the absolute byte offset of the entry's local file
	// header within the archive.
	HeaderOffset uint64

	// CompressedSize is the size of the entry's payload as stored.
	CompressedSize uint64

	// UncompressedSize is the size of the payload after decompression.
	UncompressedSize uint64

	// Method is the compression method of the payload.
	Method Method

	// CRC32 is the archive-declared checksum of the uncompressed payload.
	CRC32 uint32

	// Flags holds the raw general-purpose bit flags from the local header.
	Flags uint16
}

// HasDescriptor reports whether the entry's sizes and CRC were resolved from
// a trailing data descriptor rather than the local header.
func (e *Entry) HasDescriptor() bool {
	return e.Flags&FlagDescriptor != 0
}

// IsDir reports whether the entry is a directory marker: a name with a
// trailing slash and no content.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/") && e.UncompressedSize == 0
}
