package edzip

import (
	"fmt"
	"io"
	"os"
)

// FileSource adapts a local file to the ByteSource interface.
type FileSource struct {
	f    *os.File
	path string
	size int64
}

// OpenFile opens path as a ByteSource.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided archive path
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return &FileSource{f: f, path: path, size: info.Size()}, nil
}

// ReadAt implements io.ReaderAt. Failures other than EOF wrap
// ErrSourceUnavailable.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: read %s at %d: %v", ErrSourceUnavailable, s.path, off, err)
	}
	return n, err
}

// Size returns the file's size in bytes.
func (s *FileSource) Size() int64 {
	return s.size
}

// SourceID returns the file's path.
func (s *FileSource) SourceID() string {
	return s.path
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}
