package ziptype

import "errors"

// Sentinel errors.
var (
	// ErrMalformedRecord is returned when bytes at an expected record
	// position do not decode as any recognized ZIP record.
	ErrMalformedRecord = errors.New("edzip: malformed record")

	// ErrCorruptArchive is returned when declared sizes, descriptor
	// signatures, or central directory cross-checks disagree. The whole
	// build is invalid when this occurs.
	ErrCorruptArchive = errors.New("edzip: corrupt archive")

	// ErrNotFound is returned when a queried name has no entry.
	ErrNotFound = errors.New("edzip: entry not found")

	// ErrSourceUnavailable is returned when the byte source failed a read.
	// Callers may retry at their discretion; the library does not.
	ErrSourceUnavailable = errors.New("edzip: byte source unavailable")

	// ErrIntegrity is returned when decompressed content fails CRC or size
	// verification. It is fatal for that extraction only.
	ErrIntegrity = errors.New("edzip: integrity verification failed")

	// ErrUnsupportedMethod is returned for compression methods without a
	// registered decompressor.
	ErrUnsupportedMethod = errors.New("edzip: unsupported compression method")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("edzip: size overflow")

	// ErrNotFinalized is returned when a directory's build was aborted or is
	// still in progress; its contents must not be trusted.
	ErrNotFinalized = errors.New("edzip: index not finalized")
)
