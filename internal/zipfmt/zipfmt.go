// Package zipfmt decodes individual ZIP records from byte buffers.
//
// Decoders are pure functions: they never read past the buffer they are
// given. A buffer that does not yet hold a complete record yields ErrNeedMore,
// a distinct retryable outcome; bytes that cannot decode as the expected
// record yield an error wrapping ziptype.ErrMalformedRecord.
package zipfmt

import (
	"encoding/binary"
	"errors"

	"github.com/edzip/edzip/internal/ziptype"
)

// Record signatures, little-endian on the wire.
const (
	LocalHeaderSignature          = 0x04034b50
	CentralHeaderSignature        = 0x02014b50
	EndOfCentralDirSignature      = 0x06054b50
	DataDescriptorSignature       = 0x08074b50 // de-facto standard; not always present
	Zip64EndOfCentralDirSignature = 0x06064b50
	Zip64LocatorSignature         = 0x07064b50
)

// Fixed record lengths, excluding variable-length name/extra/comment fields.
const (
	LocalHeaderLen          = 30
	CentralHeaderLen        = 46
	EndOfCentralDirLen      = 22
	DataDescriptorLen       = 12 // crc32 + 32-bit sizes, without signature
	DataDescriptor64Len     = 20 // crc32 + 64-bit sizes, without signature
	Zip64EndOfCentralDirLen = 56
	Zip64LocatorLen         = 20
)

const (
	zip64ExtraID = 0x0001

	uint16Max = 0xffff
	uint32Max = 0xffffffff
)

// ErrNeedMore indicates the buffer does not yet hold a complete record.
// Callers should retry with more bytes.
var ErrNeedMore = errors.New("zipfmt: need more bytes")

// LocalHeader is a decoded local file header.
type LocalHeader struct {
	ReaderVersion uint16
	Flags         uint16
	Method        ziptype.Method
	ModTime       uint16
	ModDate       uint16
	CRC32         uint32

	// CompressedSize and UncompressedSize are widened from the zip64 extra
	// field when the legacy 32-bit fields hold the all-ones sentinel.
	CompressedSize   uint64
	UncompressedSize uint64

	// Name aliases the input buffer; callers must copy it if retained.
	Name []byte

	// Zip64 reports whether the header carried a zip64 extra field for its
	// sizes. Streamed entries of such headers use 64-bit data descriptors.
	Zip64 bool
}

// DataDescriptor is a decoded trailing data descriptor.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// CentralHeader is a decoded central directory header.
type CentralHeader struct {
	Flags            uint16
	Method           ziptype.Method
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	HeaderOffset     uint64

	// Name aliases the input buffer; callers must copy it if retained.
	Name []byte
}

// EndOfCentralDir is a decoded end-of-central-directory record.
type EndOfCentralDir struct {
	// TotalRecords is the declared number of central directory records.
	// The all-ones sentinel defers to the zip64 end record.
	TotalRecords    uint64
	DirectorySize   uint64
	DirectoryOffset uint64
}

// readBuf consumes little-endian fields from the front of a byte slice.
type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}
