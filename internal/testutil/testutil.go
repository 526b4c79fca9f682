// Package testutil builds ZIP fixtures and byte sources for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// ZipEntry describes one member of a fixture archive.
type ZipEntry struct {
	Name    string
	Content []byte
	Method  uint16 // zip method number: 0 store, 8 deflate
}

// BuildZip writes a fixture archive with the stdlib writer. The stdlib
// writer streams its output, so regular files carry the descriptor flag and
// trailing data descriptors; directory markers do not.
func BuildZip(tb testing.TB, entries []ZipEntry) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: e.Method})
		if err != nil {
			tb.Fatalf("create %q: %v", e.Name, err)
		}
		if _, err := w.Write(e.Content); err != nil {
			tb.Fatalf("write %q: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

// BuildStoredZip hand-writes an archive of stored entries whose sizes and
// CRCs are declared in the local headers, with no data descriptors. The
// stdlib writer cannot produce this layout because it never seeks back.
func BuildStoredZip(tb testing.TB, entries []ZipEntry) []byte {
	tb.Helper()
	var buf bytes.Buffer
	offsets := make([]uint32, len(entries))

	for i, e := range entries {
		offsets[i] = uint32(buf.Len())
		writeLocalHeader(&buf, e.Name, e.Content, 0, uint32(len(e.Content)))
		buf.Write(e.Content)
	}
	writeCentralDirectory(&buf, entries, offsets, func(e ZipEntry) (uint16, uint32, uint32) {
		return 0, uint32(len(e.Content)), uint32(len(e.Content))
	})
	return buf.Bytes()
}

// BuildZstdZip hand-writes an archive whose entries use ZIP method 93
// (zstd), with sizes declared in the local headers.
func BuildZstdZip(tb testing.TB, entries []ZipEntry) []byte {
	tb.Helper()
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		tb.Fatalf("create zstd encoder: %v", err)
	}
	defer enc.Close()

	var buf bytes.Buffer
	offsets := make([]uint32, len(entries))
	compressed := make([][]byte, len(entries))
	for i, e := range entries {
		compressed[i] = enc.EncodeAll(e.Content, nil)
	}

	for i, e := range entries {
		offsets[i] = uint32(buf.Len())
		writeLocalHeaderSized(&buf, e.Name, 93, crc32.ChecksumIEEE(e.Content),
			uint32(len(compressed[i])), uint32(len(e.Content)))
		buf.Write(compressed[i])
	}
	writeCentralDirectory(&buf, entries, offsets, func(e ZipEntry) (uint16, uint32, uint32) {
		for i := range entries {
			if entries[i].Name == e.Name {
				return 93, uint32(len(compressed[i])), uint32(len(e.Content))
			}
		}
		return 93, 0, 0
	})
	return buf.Bytes()
}

// BuildZip64Zip hand-writes a single-entry stored archive whose local header
// declares its sizes through the zip64 extra field.
func BuildZip64Zip(tb testing.TB, name string, content []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer

	sum := crc32.ChecksumIEEE(content)
	size := uint64(len(content))

	// Local header with all-ones legacy sizes and a zip64 extra field.
	le32(&buf, 0x04034b50)
	le16(&buf, 45) // reader version 4.5
	le16(&buf, 0)  // flags
	le16(&buf, 0)  // method store
	le16(&buf, 0)  // mod time
	le16(&buf, 0)  // mod date
	le32(&buf, sum)
	le32(&buf, 0xffffffff) // compressed size sentinel
	le32(&buf, 0xffffffff) // uncompressed size sentinel
	le16(&buf, uint16(len(name)))
	le16(&buf, 20) // extra length: header + two 8-byte fields
	buf.WriteString(name)
	le16(&buf, 0x0001) // zip64 extra ID
	le16(&buf, 16)
	le64(&buf, size) // uncompressed
	le64(&buf, size) // compressed
	buf.Write(content)

	entries := []ZipEntry{{Name: name, Content: content}}
	writeCentralDirectory(&buf, entries, []uint32{0}, func(e ZipEntry) (uint16, uint32, uint32) {
		return 0, uint32(len(content)), uint32(len(content))
	})
	return buf.Bytes()
}

// BuildStreamedZip64Zip hand-writes a single-entry stored archive whose
// local header defers sizes to a 64-bit data descriptor without carrying a
// zip64 extra field, the layout non-seeking zip64 writers produce.
func BuildStreamedZip64Zip(tb testing.TB, name string, content []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer

	le32(&buf, 0x04034b50)
	le16(&buf, 45)  // reader version 4.5
	le16(&buf, 0x8) // descriptor follows
	le16(&buf, 0)   // method store
	le16(&buf, 0)   // mod time
	le16(&buf, 0)   // mod date
	le32(&buf, 0)   // crc deferred
	le32(&buf, 0)   // compressed size deferred
	le32(&buf, 0)   // uncompressed size deferred
	le16(&buf, uint16(len(name)))
	le16(&buf, 0) // extra length
	buf.WriteString(name)
	buf.Write(content)
	le32(&buf, 0x08074b50)
	le32(&buf, crc32.ChecksumIEEE(content))
	le64(&buf, uint64(len(content))) // compressed
	le64(&buf, uint64(len(content))) // uncompressed

	entries := []ZipEntry{{Name: name, Content: content}}
	writeCentralDirectory(&buf, entries, []uint32{0}, func(e ZipEntry) (uint16, uint32, uint32) {
		return 0, uint32(len(content)), uint32(len(content))
	})
	return buf.Bytes()
}

func writeLocalHeader(buf *bytes.Buffer, name string, content []byte, method uint16, compressedSize uint32) {
	writeLocalHeaderSized(buf, name, method, crc32.ChecksumIEEE(content), compressedSize, uint32(len(content)))
}

func writeLocalHeaderSized(buf *bytes.Buffer, name string, method uint16, sum, compressedSize, uncompressedSize uint32) {
	le32(buf, 0x04034b50)
	le16(buf, 20) // reader version 2.0
	le16(buf, 0)  // flags
	le16(buf, method)
	le16(buf, 0) // mod time
	le16(buf, 0) // mod date
	le32(buf, sum)
	le32(buf, compressedSize)
	le32(buf, uncompressedSize)
	le16(buf, uint16(len(name)))
	le16(buf, 0) // extra length
	buf.WriteString(name)
}

func writeCentralDirectory(buf *bytes.Buffer, entries []ZipEntry, offsets []uint32, sizes func(ZipEntry) (uint16, uint32, uint32)) {
	dirOffset := uint32(buf.Len())
	for i, e := range entries {
		method, compressedSize, uncompressedSize := sizes(e)
		le32(buf, 0x02014b50)
		le16(buf, 20) // creator version
		le16(buf, 20) // reader version
		le16(buf, 0)  // flags
		le16(buf, method)
		le16(buf, 0) // mod time
		le16(buf, 0) // mod date
		le32(buf, crc32.ChecksumIEEE(e.Content))
		le32(buf, compressedSize)
		le32(buf, uncompressedSize)
		le16(buf, uint16(len(e.Name)))
		le16(buf, 0) // extra length
		le16(buf, 0) // comment length
		le16(buf, 0) // disk number start
		le16(buf, 0) // internal attrs
		le32(buf, 0) // external attrs
		le32(buf, offsets[i])
		buf.WriteString(e.Name)
	}
	dirSize := uint32(buf.Len()) - dirOffset

	le32(buf, 0x06054b50)
	le16(buf, 0) // disk number
	le16(buf, 0) // directory start disk
	le16(buf, uint16(len(entries)))
	le16(buf, uint16(len(entries)))
	le32(buf, dirSize)
	le32(buf, dirOffset)
	le16(buf, 0) // comment length
}

func le16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func le32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func le64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data []byte
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= int64(len(m.data)) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID identifies the mock source.
func (m *MockByteSource) SourceID() string {
	return "mock"
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}
