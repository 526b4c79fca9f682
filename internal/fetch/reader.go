// Package fetch reads and verifies single entries from a ranged byte source.
package fetch

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/edzip/edzip/internal/zipfmt"
	"github.com/edzip/edzip/internal/ziptype"
)

const (
	// DefaultMaxEntrySize is the default maximum uncompressed entry size (256MB).
	DefaultMaxEntrySize = 256 << 20

	// DefaultMaxDecoderMemory is the default maximum zstd decoder memory (256MB).
	DefaultMaxDecoderMemory = 256 << 20
)

// rangeReader is an optional ByteSource capability for streaming a byte
// range without intermediate buffering, useful for remote sources.
type rangeReader interface {
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// Reader extracts and verifies entry content from a ByteSource.
//
// A Reader is safe for concurrent use; extractions of distinct entries share
// no mutable state beyond the decoder pool.
type Reader struct {
	source           ziptype.ByteSource
	maxEntrySize     uint64
	maxDecoderMemory uint64
	pool             *decoderPool
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxEntrySize limits the maximum uncompressed entry size.
// Set to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(r *Reader) {
		r.maxEntrySize = limit
	}
}

// WithMaxDecoderMemory limits the memory used by the zstd decoder.
// Set to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(r *Reader) {
		r.maxDecoderMemory = limit
	}
}

// NewReader creates a Reader over the given source.
func NewReader(source ziptype.ByteSource, opts ...Option) *Reader {
	r := &Reader{
		source:           source,
		maxEntrySize:     DefaultMaxEntrySize,
		maxDecoderMemory: DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pool = newDecoderPool(r.maxDecoderMemory)
	return r
}

// Source returns the underlying ByteSource.
func (r *Reader) Source() ziptype.ByteSource {
	return r.source
}

// Extract fetches the byte range backing one entry, decompresses it, and
// verifies the result against the entry's declared CRC and size.
//
// The local header at the entry's recorded offset is re-measured first; its
// variable-length name and extra fields are read back from the source rather
// than assumed, guarding against drift between index and archive.
func (r *Reader) Extract(ctx context.Context, entry *ziptype.Entry) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.maxEntrySize != 0 && entry.UncompressedSize > r.maxEntrySize {
		return nil, fmt.Errorf("%w: entry %q declares %d uncompressed bytes, limit is %d",
			ziptype.ErrSizeOverflow, entry.Name, entry.UncompressedSize, r.maxEntrySize)
	}

	payloadOff, err := r.payloadOffset(entry)
	if err != nil {
		return nil, err
	}

	content, err := r.decompress(entry, payloadOff)
	if err != nil {
		return nil, err
	}

	if uint64(len(content)) != entry.UncompressedSize {
		return nil, fmt.Errorf("%w: entry %q decompressed to %d bytes, index declares %d",
			ziptype.ErrIntegrity, entry.Name, len(content), entry.UncompressedSize)
	}
	if sum := crc32.ChecksumIEEE(content); sum != entry.CRC32 {
		return nil, fmt.Errorf("%w: entry %q crc32 %08x, index declares %08x",
			ziptype.ErrIntegrity, entry.Name, sum, entry.CRC32)
	}
	return content, nil
}

// payloadOffset re-measures the local header at the entry's recorded offset
// and returns the absolute offset of the compressed payload.
func (r *Reader) payloadOffset(entry *ziptype.Entry) (uint64, error) {
	off, err := toInt64(entry.HeaderOffset)
	if err != nil {
		return 0, fmt.Errorf("entry %q: %w", entry.Name, err)
	}

	var fixed [zipfmt.LocalHeaderLen]byte
	if _, err := io.ReadFull(io.NewSectionReader(r.source, off, zipfmt.LocalHeaderLen), fixed[:]); err != nil {
		return 0, fmt.Errorf("read local header for %q: %w", entry.Name, err)
	}
	n, err := zipfmt.LocalHeaderSize(fixed[:])
	if err != nil {
		return 0, fmt.Errorf("%w: entry %q at offset %d: %v", ziptype.ErrCorruptArchive, entry.Name, entry.HeaderOffset, err)
	}
	return entry.HeaderOffset + uint64(n), nil
}

// payloadReader returns a reader over the entry's compressed payload,
// preferring a streaming range read when the source supports one.
func (r *Reader) payloadReader(entry *ziptype.Entry, off uint64) (io.Reader, func(), error) {
	offset, err := toInt64(off)
	if err != nil {
		return nil, nil, fmt.Errorf("entry %q: %w", entry.Name, err)
	}
	length, err := toInt64(entry.CompressedSize)
	if err != nil {
		return nil, nil, fmt.Errorf("entry %q: %w", entry.Name, err)
	}

	if rr, ok := r.source.(rangeReader); ok && length > 0 {
		rc, err := rr.ReadRange(offset, length)
		if err != nil {
			return nil, nil, fmt.Errorf("read payload for %q: %w", entry.Name, err)
		}
		return rc, func() { _ = rc.Close() }, nil
	}
	return io.NewSectionReader(r.source, offset, length), func() {}, nil
}

func toInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, ziptype.ErrSizeOverflow
	}
	return int64(v), nil
}
