package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edzip/edzip"
)

func TestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := New()
	entries := []edzip.Entry{
		{Name: "a.txt", Seq: 0, HeaderOffset: 0, CRC32: 0x1},
		{Name: "dup.txt", Seq: 1, HeaderOffset: 40, CRC32: 0x2},
		{Name: "dup.txt", Seq: 2, HeaderOffset: 80, CRC32: 0x3},
	}
	require.NoError(t, s.Put(ctx, entries))
	meta := edzip.Meta{Version: edzip.FormatVersion, ArchiveSize: 128, Entries: 3}
	require.NoError(t, s.SetMeta(ctx, meta))

	t.Run("get by name", func(t *testing.T) {
		t.Parallel()
		e, err := s.GetByName(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), e.Seq)
	})

	t.Run("duplicate names last wins", func(t *testing.T) {
		t.Parallel()
		e, err := s.GetByName(ctx, "dup.txt")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), e.Seq)
		assert.Equal(t, uint32(0x3), e.CRC32)
	})

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()
		_, err := s.GetByName(ctx, "nope")
		assert.ErrorIs(t, err, edzip.ErrNotFound)
	})

	t.Run("iterate from seq", func(t *testing.T) {
		t.Parallel()
		var seqs []uint64
		for e, err := range s.Entries(ctx, 1) {
			require.NoError(t, err)
			seqs = append(seqs, e.Seq)
		}
		assert.Equal(t, []uint64{1, 2}, seqs)
	})

	t.Run("count and meta", func(t *testing.T) {
		t.Parallel()
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		got, err := s.Meta(ctx)
		require.NoError(t, err)
		assert.Equal(t, meta, got)
	})
}

func TestStoreUnfinalizedMeta(t *testing.T) {
	t.Parallel()
	s := New()
	_, err := s.Meta(context.Background())
	assert.ErrorIs(t, err, edzip.ErrNotFinalized)
}
