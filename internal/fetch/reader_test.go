package fetch

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edzip/edzip/internal/scan"
	"github.com/edzip/edzip/internal/testutil"
	"github.com/edzip/edzip/internal/ziptype"
)

// scanEntries runs the scanner over the archive and returns its entries.
func scanEntries(t *testing.T, archive []byte) []ziptype.Entry {
	t.Helper()
	var entries []ziptype.Entry
	err := scan.Run(context.Background(), bytes.NewReader(archive), func(e ziptype.Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	return entries
}

func findEntry(t *testing.T, entries []ziptype.Entry, name string) *ziptype.Entry {
	t.Helper()
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i]
		}
	}
	t.Fatalf("entry %q not found", name)
	return nil
}

func TestReaderExtractStored(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "a.txt", Content: []byte("hello")},
		{Name: "empty.txt", Content: nil},
	})
	entries := scanEntries(t, archive)
	r := NewReader(testutil.NewMockByteSource(archive))

	content, err := r.Extract(context.Background(), findEntry(t, entries, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	content, err = r.Extract(context.Background(), findEntry(t, entries, "empty.txt"))
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestReaderExtractDeflate(t *testing.T) {
	t.Parallel()

	want := bytes.Repeat([]byte("compressible content "), 100)
	archive := testutil.BuildZip(t, []testutil.ZipEntry{
		{Name: "b.bin", Content: want, Method: 8},
	})
	entries := scanEntries(t, archive)
	r := NewReader(testutil.NewMockByteSource(archive))

	content, err := r.Extract(context.Background(), &entries[0])
	require.NoError(t, err)
	assert.Equal(t, want, content)
}

func TestReaderExtractZstd(t *testing.T) {
	t.Parallel()

	want := bytes.Repeat([]byte("zstandard payload "), 200)
	archive := testutil.BuildZstdZip(t, []testutil.ZipEntry{
		{Name: "c.bin", Content: want},
	})
	entries := scanEntries(t, archive)
	require.Equal(t, ziptype.MethodZstd, entries[0].Method)

	r := NewReader(testutil.NewMockByteSource(archive))
	content, err := r.Extract(context.Background(), &entries[0])
	require.NoError(t, err)
	assert.Equal(t, want, content)
}

func TestReaderUnsupportedMethod(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "a.txt", Content: []byte("hello")},
	})
	entries := scanEntries(t, archive)
	entries[0].Method = 14 // lzma

	r := NewReader(testutil.NewMockByteSource(archive))
	_, err := r.Extract(context.Background(), &entries[0])
	assert.ErrorIs(t, err, ziptype.ErrUnsupportedMethod)
}

func TestReaderCorruptPayload(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "a.txt", Content: []byte("hello")},
		{Name: "b.txt", Content: []byte("world")},
	})
	entries := scanEntries(t, archive)

	// Flip one payload byte of a.txt; b.txt must stay readable.
	corrupted := bytes.Clone(archive)
	i := bytes.Index(corrupted, []byte("hello"))
	require.GreaterOrEqual(t, i, 0)
	corrupted[i] ^= 0x01

	r := NewReader(testutil.NewMockByteSource(corrupted))
	_, err := r.Extract(context.Background(), findEntry(t, entries, "a.txt"))
	assert.ErrorIs(t, err, ziptype.ErrIntegrity)

	content, err := r.Extract(context.Background(), findEntry(t, entries, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), content)
}

func TestReaderSizeMismatch(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "a.txt", Content: []byte("hello")},
	})
	entries := scanEntries(t, archive)

	// An index that disagrees with the payload must fail closed.
	entries[0].UncompressedSize = 3
	r := NewReader(testutil.NewMockByteSource(archive))
	_, err := r.Extract(context.Background(), &entries[0])
	assert.ErrorIs(t, err, ziptype.ErrIntegrity)
}

func TestReaderMaxEntrySize(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "a.txt", Content: []byte("hello world")},
	})
	entries := scanEntries(t, archive)

	r := NewReader(testutil.NewMockByteSource(archive), WithMaxEntrySize(4))
	_, err := r.Extract(context.Background(), &entries[0])
	assert.ErrorIs(t, err, ziptype.ErrSizeOverflow)

	unlimited := NewReader(testutil.NewMockByteSource(archive), WithMaxEntrySize(0))
	content, err := unlimited.Extract(context.Background(), &entries[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), content)
}

func TestReaderStaleHeaderOffset(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "a.txt", Content: []byte("hello")},
		{Name: "b.txt", Content: []byte("world")},
	})
	entries := scanEntries(t, archive)

	// An offset pointing at payload bytes instead of a header means the
	// index no longer describes this archive.
	entries[0].HeaderOffset += 5
	r := NewReader(testutil.NewMockByteSource(archive))
	_, err := r.Extract(context.Background(), &entries[0])
	assert.ErrorIs(t, err, ziptype.ErrCorruptArchive)
}

func TestReaderCancelledContext(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "a.txt", Content: []byte("hello")},
	})
	entries := scanEntries(t, archive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReader(testutil.NewMockByteSource(archive))
	_, err := r.Extract(ctx, &entries[0])
	assert.ErrorIs(t, err, context.Canceled)
}
