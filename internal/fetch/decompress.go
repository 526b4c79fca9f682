package fetch

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"github.com/edzip/edzip/internal/ziptype"
)

// decompress reads the entry's compressed payload starting at off and
// returns the decompressed content. The method dispatch is a closed switch;
// unrecognized methods fail loudly rather than falling through.
func (r *Reader) decompress(entry *ziptype.Entry, off uint64) ([]byte, error) {
	payload, release, err := r.payloadReader(entry, off)
	if err != nil {
		return nil, err
	}
	defer release()

	switch entry.Method {
	case ziptype.MethodStore:
		content := make([]byte, entry.CompressedSize)
		if _, err := io.ReadFull(payload, content); err != nil {
			return nil, fmt.Errorf("read payload for %q: %w", entry.Name, err)
		}
		return content, nil

	case ziptype.MethodDeflate:
		fr := flate.NewReader(payload)
		defer fr.Close()
		return r.readDecompressed(entry, fr)

	case ziptype.MethodZstd:
		dec, releaseDec, err := r.pool.Get(payload)
		if err != nil {
			return nil, fmt.Errorf("decompress %q: %w", entry.Name, err)
		}
		defer releaseDec()
		return r.readDecompressed(entry, dec)

	default:
		return nil, fmt.Errorf("%w: method %d (%s) for entry %q",
			ziptype.ErrUnsupportedMethod, uint16(entry.Method), entry.Method, entry.Name)
	}
}

// readDecompressed reads exactly the declared uncompressed size and treats
// both short and over-long streams as integrity failures.
func (r *Reader) readDecompressed(entry *ziptype.Entry, reader io.Reader) ([]byte, error) {
	content := make([]byte, entry.UncompressedSize)
	if _, err := io.ReadFull(reader, content); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: entry %q: decompressed stream shorter than declared size",
				ziptype.ErrIntegrity, entry.Name)
		}
		return nil, fmt.Errorf("%w: entry %q: %v", ziptype.ErrIntegrity, entry.Name, err)
	}
	var extra [1]byte
	if n, _ := reader.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("%w: entry %q: decompressed stream exceeds declared size",
			ziptype.ErrIntegrity, entry.Name)
	}
	return content, nil
}

// decoderPool manages reusable zstd decoders to reduce allocation overhead.
type decoderPool struct {
	pool      *sync.Pool
	maxMemory uint64
}

func newDecoderPool(maxMemory uint64) *decoderPool {
	p := &decoderPool{maxMemory: maxMemory}
	p.pool = &sync.Pool{
		New: func() any {
			dec, err := p.newDecoder(nil)
			if err != nil {
				return nil
			}
			return dec
		},
	}
	return p
}

// Get returns a decoder configured to read from r. The caller must call the
// returned release function when done. If an error is returned, no release
// function needs to be called.
func (p *decoderPool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	value := p.pool.Get()
	dec, ok := value.(*zstd.Decoder)
	if !ok {
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

func (p *decoderPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(false),
	}
	if p.maxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxMemory))
	}
	return zstd.NewReader(r, opts...)
}
