package ziptype

import (
	"io"

	"github.com/opencontainers/go-digest"
)

// FormatVersion is the current directory format version.
const FormatVersion = 1

// Meta describes a completed index build. A directory without a meta record
// was never finalized and must not be trusted.
type Meta struct {
	// Version is the directory format version the index was built with.
	Version uint32

	// ArchiveSize is the total number of archive bytes consumed by the
	// build pass.
	ArchiveSize uint64

	// Entries is the number of entries the build emitted.
	Entries uint64

	// Digest is the content digest of the scanned archive bytes. Read
	// sessions can compare it against the byte source to detect drift
	// between the index and the archive.
	Digest digest.Digest
}

// ByteSource provides random access to archive bytes.
//
// Implementations exist for local files and HTTP range requests. SourceID
// must return a stable identifier for the underlying content, such as a path
// or URL. Read failures should wrap ErrSourceUnavailable so callers can
// distinguish them from archive corruption.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}
