package edzip

import "github.com/edzip/edzip/internal/ziptype"

// Sentinel errors re-exported from internal/ziptype.
var (
	// ErrMalformedRecord is returned when bytes at an expected record
	// position do not decode as any recognized ZIP record.
	ErrMalformedRecord = ziptype.ErrMalformedRecord

	// ErrCorruptArchive is returned when declared sizes, descriptor
	// signatures, or central directory cross-checks disagree. A build that
	// fails this way leaves no usable index.
	ErrCorruptArchive = ziptype.ErrCorruptArchive

	// ErrNotFound is returned when a queried name has no entry.
	ErrNotFound = ziptype.ErrNotFound

	// ErrSourceUnavailable is returned when the byte source failed a read.
	ErrSourceUnavailable = ziptype.ErrSourceUnavailable

	// ErrIntegrity is returned when decompressed content fails CRC or size
	// verification. It never invalidates other entries or the index.
	ErrIntegrity = ziptype.ErrIntegrity

	// ErrUnsupportedMethod is returned for compression methods without a
	// registered decompressor.
	ErrUnsupportedMethod = ziptype.ErrUnsupportedMethod

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = ziptype.ErrSizeOverflow

	// ErrNotFinalized is returned when a directory's build was aborted or is
	// still in progress. Every Directory implementation signals the condition
	// with this sentinel; such a directory must be discarded and rebuilt.
	ErrNotFinalized = ziptype.ErrNotFinalized
)
