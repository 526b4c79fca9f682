// Package sqlite provides a SQLite-backed edzip.Directory.
//
// The database holds one row per entry keyed by sequence number, with a
// name index created only after the bulk load so build-time inserts stay
// cheap even for archives with millions of members.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/opencontainers/go-digest"

	"github.com/edzip/edzip"
)

const schemaSQL = `
CREATE TABLE entries (
	seq               INTEGER PRIMARY KEY,
	name              BLOB NOT NULL,
	header_offset     INTEGER NOT NULL,
	compressed_size   INTEGER NOT NULL,
	uncompressed_size INTEGER NOT NULL,
	method            INTEGER NOT NULL,
	crc32             INTEGER NOT NULL,
	flags             INTEGER NOT NULL
);
CREATE TABLE meta (
	id           INTEGER PRIMARY KEY CHECK (id = 0),
	version      INTEGER NOT NULL,
	archive_size INTEGER NOT NULL,
	entry_count  INTEGER NOT NULL,
	digest       TEXT NOT NULL
);`

const entryColumns = "seq, name, header_offset, compressed_size, uncompressed_size, method, crc32, flags"

// Store is a SQLite-backed edzip.Directory.
type Store struct {
	db   *sql.DB
	path string
}

// Create opens a fresh directory database at path for an index build,
// replacing any existing database there. Durability settings are relaxed
// during the build; a crashed build leaves an unfinalized database that
// Open refuses.
func Create(path string) (*Store, error) {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale index %s: %w", p, err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=MEMORY&_synchronous=OFF")
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	// The build is a single sequential writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Open opens an existing, finalized directory database read-only. A database
// without a meta row was never finalized and is refused with
// edzip.ErrNotFinalized.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM meta").Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("read index meta %s: %w", path, err)
	}
	if n == 0 {
		db.Close()
		return nil, fmt.Errorf("%w: %s", edzip.ErrNotFinalized, path)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists a batch of entries in one transaction.
func (s *Store) Put(ctx context.Context, entries []edzip.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entries ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			int64(e.Seq), []byte(e.Name), int64(e.HeaderOffset),
			int64(e.CompressedSize), int64(e.UncompressedSize),
			int64(e.Method), int64(e.CRC32), int64(e.Flags))
		if err != nil {
			return fmt.Errorf("insert entry %q: %w", e.Name, err)
		}
	}
	return tx.Commit()
}

// SetMeta finalizes the build: it creates the name index over the
// bulk-loaded rows and records the build metadata. A database without a
// meta row is incomplete by definition.
func (s *Store) SetMeta(ctx context.Context, meta edzip.Meta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_entries_name ON entries (name)"); err != nil {
		return fmt.Errorf("create name index: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO meta (id, version, archive_size, entry_count, digest) VALUES (0, ?, ?, ?, ?)",
		int64(meta.Version), int64(meta.ArchiveSize), int64(meta.Entries), meta.Digest.String())
	if err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return tx.Commit()
}

// GetByName returns the entry with the given name, matched byte for byte.
// Duplicate names resolve to the last occurrence in scan order.
func (s *Store) GetByName(ctx context.Context, name string) (edzip.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE name = ? ORDER BY seq DESC LIMIT 1",
		[]byte(name))
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return edzip.Entry{}, fmt.Errorf("%w: %q", edzip.ErrNotFound, name)
	}
	if err != nil {
		return edzip.Entry{}, fmt.Errorf("lookup %q: %w", name, err)
	}
	return e, nil
}

// Entries iterates entries in sequence order starting at startSeq. The
// cursor holds no state beyond the running query; re-invoking with the same
// startSeq yields the same rows.
func (s *Store) Entries(ctx context.Context, startSeq uint64) iter.Seq2[edzip.Entry, error] {
	return func(yield func(edzip.Entry, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+entryColumns+" FROM entries WHERE seq >= ? ORDER BY seq",
			int64(startSeq))
		if err != nil {
			yield(edzip.Entry{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows.Scan)
			if err != nil {
				yield(edzip.Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(edzip.Entry{}, err)
		}
	}
}

// Count returns the number of entries in the directory.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n)
	return n, err
}

// Meta returns the finalized build metadata.
func (s *Store) Meta(ctx context.Context) (edzip.Meta, error) {
	var meta edzip.Meta
	var version, archiveSize, entryCount int64
	var dgst string
	err := s.db.QueryRowContext(ctx,
		"SELECT version, archive_size, entry_count, digest FROM meta WHERE id = 0").
		Scan(&version, &archiveSize, &entryCount, &dgst)
	if errors.Is(err, sql.ErrNoRows) {
		return edzip.Meta{}, fmt.Errorf("%w: %s", edzip.ErrNotFinalized, s.path)
	}
	if err != nil {
		return edzip.Meta{}, err
	}
	meta.Version = uint32(version)
	meta.ArchiveSize = uint64(archiveSize)
	meta.Entries = uint64(entryCount)
	meta.Digest = digest.Digest(dgst)
	return meta, nil
}

func scanEntry(scan func(dest ...any) error) (edzip.Entry, error) {
	var seq, headerOffset, compressedSize, uncompressedSize, method, crc, flags int64
	var name []byte
	if err := scan(&seq, &name, &headerOffset, &compressedSize, &uncompressedSize, &method, &crc, &flags); err != nil {
		return edzip.Entry{}, err
	}
	return edzip.Entry{
		Name:             string(name),
		Seq:              uint64(seq),
		HeaderOffset:     uint64(headerOffset),
		CompressedSize:   uint64(compressedSize),
		UncompressedSize: uint64(uncompressedSize),
		Method:           edzip.Method(method),
		CRC32:            uint32(crc),
		Flags:            uint16(flags),
	}, nil
}
