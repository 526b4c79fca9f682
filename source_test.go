package edzip_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edzip/edzip"
)

func TestOpenFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	archive := fixtureArchive(t)
	path := filepath.Join(t.TempDir(), "fixture.zip")
	require.NoError(t, os.WriteFile(path, archive, 0o644))

	src, err := edzip.OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(len(archive)), src.Size())
	assert.Equal(t, path, src.SourceID())

	buf := make([]byte, 4)
	_, err = src.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x4b, 0x03, 0x04}, buf)

	dir, _ := buildFixture(t, archive)
	arc, err := edzip.Open(ctx, dir, src)
	require.NoError(t, err)
	content, err := arc.Extract(ctx, "b.bin")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0}, 1000), content)
}

func TestOpenFileMissing(t *testing.T) {
	t.Parallel()
	_, err := edzip.OpenFile(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}
