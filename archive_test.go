package edzip_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edzip/edzip"
	edziphttp "github.com/edzip/edzip/http"
	"github.com/edzip/edzip/internal/testutil"
	"github.com/edzip/edzip/store/memstore"
	"github.com/edzip/edzip/store/sqlite"
)

// openFixture builds an index over the archive and opens it for reading.
func openFixture(t *testing.T, archive []byte) *edzip.Archive {
	t.Helper()
	dir, _ := buildFixture(t, archive)
	arc, err := edzip.Open(context.Background(), dir, testutil.NewMockByteSource(archive))
	require.NoError(t, err)
	return arc
}

func TestArchiveExtract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := fixtureArchive(t)
	arc := openFixture(t, archive)

	content, err := arc.Extract(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	content, err = arc.Extract(ctx, "b.bin")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0}, 1000), content)

	content, err = arc.Extract(ctx, "dir/")
	require.NoError(t, err)
	assert.Empty(t, content)

	_, err = arc.Extract(ctx, "missing.txt")
	assert.ErrorIs(t, err, edzip.ErrNotFound)
}

func TestArchiveExtractAllEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	want := map[string][]byte{
		"a.txt": []byte("hello"),
		"dir/":  {},
		"b.bin": bytes.Repeat([]byte{0}, 1000),
	}
	arc := openFixture(t, fixtureArchive(t))

	seen := 0
	for e, err := range arc.Entries(ctx) {
		require.NoError(t, err)
		content, err := arc.ExtractEntry(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, want[e.Name], content, "entry %q", e.Name)
		seen++
	}
	assert.Equal(t, len(want), seen)
}

func TestArchiveLookupAndLen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	arc := openFixture(t, fixtureArchive(t))

	n, err := arc.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	e, err := arc.Lookup(ctx, "b.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.Seq)

	assert.Equal(t, uint64(3), arc.Meta().Entries)
}

func TestArchiveEntriesFrom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	arc := openFixture(t, fixtureArchive(t))

	it, err := arc.EntriesFrom(ctx, "dir/")
	require.NoError(t, err)
	var names []string
	for e, err := range it {
		require.NoError(t, err)
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"dir/", "b.bin"}, names)

	_, err = arc.EntriesFrom(ctx, "missing")
	assert.ErrorIs(t, err, edzip.ErrNotFound)
}

func TestArchiveCorruptEntryIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := fixtureArchive(t)
	dir, _ := buildFixture(t, archive)

	// Flip a bit inside a.txt's payload after the index was built. Only
	// that entry may fail; the rest of the archive stays readable.
	corrupted := bytes.Clone(archive)
	i := bytes.Index(corrupted, []byte("hello"))
	require.GreaterOrEqual(t, i, 0)
	corrupted[i] ^= 0x40

	arc, err := edzip.Open(ctx, dir, testutil.NewMockByteSource(corrupted))
	require.NoError(t, err)

	_, err = arc.Extract(ctx, "a.txt")
	assert.ErrorIs(t, err, edzip.ErrIntegrity)

	content, err := arc.Extract(ctx, "b.bin")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0}, 1000), content)

	// The failure is per-extraction, not sticky.
	_, err = arc.Extract(ctx, "a.txt")
	assert.ErrorIs(t, err, edzip.ErrIntegrity)
}

func TestArchiveSizeMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := fixtureArchive(t)
	dir, _ := buildFixture(t, archive)

	grown := append(bytes.Clone(archive), "trailing junk"...)
	_, err := edzip.Open(ctx, dir, testutil.NewMockByteSource(grown))
	assert.ErrorIs(t, err, edzip.ErrCorruptArchive)

	arc, err := edzip.Open(ctx, dir, testutil.NewMockByteSource(grown), edzip.WithoutSizeCheck())
	require.NoError(t, err)
	content, err := arc.Extract(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)
}

func TestArchiveConcurrentExtract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	arc := openFixture(t, fixtureArchive(t))
	names := []string{"a.txt", "b.bin", "a.txt", "dir/", "b.bin", "a.txt"}

	var wg sync.WaitGroup
	for _, name := range names {
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := arc.Extract(ctx, name)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()
}

func TestArchiveMaxEntrySize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := fixtureArchive(t)
	dir, _ := buildFixture(t, archive)
	arc, err := edzip.Open(ctx, dir, testutil.NewMockByteSource(archive), edzip.WithMaxEntrySize(100))
	require.NoError(t, err)

	_, err = arc.Extract(ctx, "b.bin")
	assert.ErrorIs(t, err, edzip.ErrSizeOverflow)

	content, err := arc.Extract(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)
}

func TestArchiveZstdEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	want := bytes.Repeat([]byte("zstd block "), 300)
	archive := testutil.BuildZstdZip(t, []testutil.ZipEntry{
		{Name: "z.bin", Content: want},
	})
	arc := openFixture(t, archive)

	e, err := arc.Lookup(ctx, "z.bin")
	require.NoError(t, err)
	assert.Equal(t, edzip.MethodZstd, e.Method)

	content, err := arc.Extract(ctx, "z.bin")
	require.NoError(t, err)
	assert.Equal(t, want, content)
}

func TestArchiveDuplicateNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := testutil.BuildStoredZip(t, []testutil.ZipEntry{
		{Name: "dup.txt", Content: []byte("old")},
		{Name: "dup.txt", Content: []byte("new")},
	})
	arc := openFixture(t, archive)

	content, err := arc.Extract(ctx, "dup.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), content)

	// Both occurrences remain reachable through iteration.
	var contents []string
	for e, err := range arc.Entries(ctx) {
		require.NoError(t, err)
		c, err := arc.ExtractEntry(ctx, e)
		require.NoError(t, err)
		contents = append(contents, string(c))
	}
	assert.Equal(t, []string{"old", "new"}, contents)
}

func TestArchiveSQLiteEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := fixtureArchive(t)
	path := filepath.Join(t.TempDir(), "fixture.edzip.sqlite3")

	w, err := sqlite.Create(path)
	require.NoError(t, err)
	_, err = edzip.Build(ctx, bytes.NewReader(archive), w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := sqlite.Open(path)
	require.NoError(t, err)
	defer r.Close()

	arc, err := edzip.Open(ctx, r, testutil.NewMockByteSource(archive))
	require.NoError(t, err)

	content, err := arc.Extract(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	content, err = arc.Extract(ctx, "b.bin")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0}, 1000), content)
}

func TestArchiveHTTPEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := fixtureArchive(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "fixture.zip", time.Time{}, bytes.NewReader(archive))
	}))
	t.Cleanup(server.Close)

	// Index from the streamed body, then read entries over range requests.
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	dir := memstore.New()
	_, err = edzip.Build(ctx, resp.Body, dir)
	resp.Body.Close()
	require.NoError(t, err)

	src, err := edziphttp.NewSource(server.URL)
	require.NoError(t, err)

	arc, err := edzip.Open(ctx, dir, src)
	require.NoError(t, err)

	content, err := arc.Extract(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), content)

	content, err = arc.Extract(ctx, "b.bin")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0}, 1000), content)
}
