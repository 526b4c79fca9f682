package edzip

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/edzip/edzip/internal/fetch"
)

// Archive binds a finalized Directory to a ByteSource for random access
// reads.
//
// The read path is embarrassingly parallel: extractions of distinct entries
// share no mutable state and may run on arbitrarily many goroutines, bounded
// only by the source's own concurrency limits. Concurrent extractions of the
// same entry are deduplicated.
type Archive struct {
	dir    Directory
	src    ByteSource
	reader *fetch.Reader
	meta   Meta

	maxEntrySize        uint64
	maxEntrySizeSet     bool
	maxDecoderMemory    uint64
	maxDecoderMemorySet bool
	skipSizeCheck       bool

	group  singleflight.Group
	logger *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithMaxEntrySize limits the maximum uncompressed entry size (default 256MB).
// Set to 0 to disable the limit.
func WithMaxEntrySize(limit uint64) Option {
	return func(a *Archive) {
		a.maxEntrySize = limit
		a.maxEntrySizeSet = true
	}
}

// WithMaxDecoderMemory limits the memory used by the zstd decoder (default 256MB).
// Set to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(a *Archive) {
		a.maxDecoderMemory = limit
		a.maxDecoderMemorySet = true
	}
}

// WithoutSizeCheck disables the check that the source's size matches the
// size recorded at build time. Useful for sources that append trailing data
// after the archive proper.
func WithoutSizeCheck() Option {
	return func(a *Archive) {
		a.skipSizeCheck = true
	}
}

// WithLogger sets the logger used by the archive.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// Open binds a finalized directory to a byte source.
//
// Open verifies that the source's length matches the length recorded when
// the index was built; a mismatch means the index no longer describes this
// archive and reads against it would return garbage.
func Open(ctx context.Context, dir Directory, src ByteSource, opts ...Option) (*Archive, error) {
	meta, err := dir.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index meta: %w", err)
	}

	a := &Archive{dir: dir, src: src, meta: meta}
	for _, opt := range opts {
		opt(a)
	}

	if !a.skipSizeCheck && meta.ArchiveSize != uint64(src.Size()) {
		return nil, fmt.Errorf("%w: index built over %d bytes, source %s holds %d",
			ErrCorruptArchive, meta.ArchiveSize, src.SourceID(), src.Size())
	}

	readerOpts := []fetch.Option{}
	if a.maxEntrySizeSet {
		readerOpts = append(readerOpts, fetch.WithMaxEntrySize(a.maxEntrySize))
	}
	if a.maxDecoderMemorySet {
		readerOpts = append(readerOpts, fetch.WithMaxDecoderMemory(a.maxDecoderMemory))
	}
	a.reader = fetch.NewReader(src, readerOpts...)
	return a, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Meta returns the build metadata the archive was opened with.
func (a *Archive) Meta() Meta {
	return a.meta
}

// Lookup returns the entry with the given name, matched byte for byte.
// When the archive holds duplicate names, the last occurrence wins.
func (a *Archive) Lookup(ctx context.Context, name string) (Entry, error) {
	return a.dir.GetByName(ctx, name)
}

// Len returns the number of entries in the archive.
func (a *Archive) Len(ctx context.Context) (int64, error) {
	return a.dir.Count(ctx)
}

// Entries iterates all entries in sequence order.
func (a *Archive) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return a.dir.Entries(ctx, 0)
}

// EntriesFrom iterates entries in sequence order starting at the named
// entry, mirroring sequential reads that resume mid-archive.
func (a *Archive) EntriesFrom(ctx context.Context, name string) (iter.Seq2[Entry, error], error) {
	e, err := a.dir.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.dir.Entries(ctx, e.Seq), nil
}

// Extract looks up name and returns the entry's decompressed, verified
// content.
func (a *Archive) Extract(ctx context.Context, name string) ([]byte, error) {
	e, err := a.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.ExtractEntry(ctx, e)
}

// ExtractEntry returns the decompressed, verified content of one entry.
//
// An integrity failure is scoped to this extraction; it never invalidates
// the directory or other in-flight extractions. Concurrent calls for the
// same entry are deduplicated with singleflight.
func (a *Archive) ExtractEntry(ctx context.Context, entry Entry) ([]byte, error) {
	key := fmt.Sprintf("%d\x00%s", entry.Seq, entry.Name)
	v, err, shared := a.group.Do(key, func() (any, error) {
		return a.reader.Extract(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}
	a.log().Debug("extracted entry", "name", entry.Name, "seq", entry.Seq, "shared", shared)
	return v.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}
