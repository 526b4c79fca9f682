package edzip

import (
	"context"
	"iter"
)

// Directory is the durable external directory replacing a ZIP archive's
// central directory.
//
// A Directory is written exactly once, by a single build pass, and is
// read-only afterwards. SetMeta finalizes the build; a Directory whose Meta
// is absent was never completed and must be discarded and rebuilt.
type Directory interface {
	// Put persists a batch of entries in scan order.
	Put(ctx context.Context, entries []Entry) error

	// SetMeta finalizes the build, recording the archive's size, entry
	// count, and content digest. Implementations may use this point to
	// build lookup indexes over the bulk-loaded rows.
	SetMeta(ctx context.Context, meta Meta) error

	// GetByName returns the entry with the given name, matched byte for
	// byte. When the archive holds duplicate names, the last occurrence
	// wins, matching how sequential extraction tools overwrite earlier
	// files. Returns ErrNotFound when no entry matches.
	GetByName(ctx context.Context, name string) (Entry, error)

	// Entries iterates entries in sequence order starting at startSeq.
	// The iteration is lazy and restartable: re-invoking with the same
	// startSeq yields the same results for the lifetime of the store.
	Entries(ctx context.Context, startSeq uint64) iter.Seq2[Entry, error]

	// Count returns the number of entries in the directory.
	Count(ctx context.Context) (int64, error)

	// Meta returns the finalized build metadata.
	Meta(ctx context.Context) (Meta, error)

	// Close releases the directory's resources.
	Close() error
}
