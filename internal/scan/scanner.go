// Package scan drives the record decoder across a forward-only stream of
// archive bytes, emitting one entry per fully-resolved member.
package scan

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/edzip/edzip/internal/zipfmt"
	"github.com/edzip/edzip/internal/ziptype"
)

// DefaultMaxDescriptorScan bounds the forward search for a data descriptor
// when an entry's payload length is unknown at header time. Corrupt input
// must not turn the search into an unbounded scan.
const DefaultMaxDescriptorScan = 4 << 30

const defaultChunkSize = 64 << 10

// descriptorMagic is the data descriptor signature in wire order.
var descriptorMagic = []byte{0x50, 0x4b, 0x07, 0x08}

type state uint8

const (
	stateHeader state = iota
	statePayload
	stateDescriptor
	stateCentral
	stateTrailer
	stateDone
)

func (s state) String() string {
	switch s {
	case stateHeader:
		return "awaiting header"
	case statePayload:
		return "reading payload"
	case stateDescriptor:
		return "awaiting descriptor"
	case stateCentral:
		return "reading central directory"
	case stateTrailer:
		return "reading trailer"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// EmitFunc receives one entry per archive member, in scan order. An error
// aborts the scan.
type EmitFunc func(ziptype.Entry) error

// Option configures a Scanner.
type Option func(*Scanner)

// WithMaxDescriptorScan sets the ceiling on the forward search for a data
// descriptor. Zero restores the default.
func WithMaxDescriptorScan(limit uint64) Option {
	return func(s *Scanner) {
		if limit == 0 {
			limit = DefaultMaxDescriptorScan
		}
		s.maxScan = limit
	}
}

// Scanner is a chunk-fed state machine over one archive's byte stream.
//
// Feed accepts chunks of any granularity; the emitted entries are identical
// whether the archive arrives one byte at a time or all at once. Each build
// runs its own Scanner instance; the type is not safe for concurrent use.
type Scanner struct {
	emit    EmitFunc
	maxScan uint64

	buf    []byte
	offset uint64 // absolute archive offset of buf[0]
	state  state

	cur      ziptype.Entry
	curZip64 bool

	remaining uint64 // payload bytes left to skip
	scanned   uint64 // payload bytes consumed while searching for a descriptor

	seq             uint64
	centralRecords  uint64
	expectedRecords uint64
	hasExpected     bool
}

// New creates a Scanner that invokes emit for each fully-resolved entry.
func New(emit EmitFunc, opts ...Option) *Scanner {
	s := &Scanner{
		emit:    emit,
		maxScan: DefaultMaxDescriptorScan,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Count returns the number of entries emitted so far.
func (s *Scanner) Count() uint64 {
	return s.seq
}

// Offset returns the absolute archive offset of the next unprocessed byte.
func (s *Scanner) Offset() uint64 {
	return s.offset
}

// Feed consumes the next chunk of archive bytes. Decode errors are fatal to
// the scan; the Scanner must not be fed again after an error.
func (s *Scanner) Feed(p []byte) error {
	// Payload bytes are skipped straight off the input when nothing is
	// buffered, so entry payloads are never accumulated in memory.
	if s.state == statePayload && len(s.buf) == 0 && len(p) > 0 {
		n := uint64(len(p))
		if n > s.remaining {
			n = s.remaining
		}
		s.offset += n
		s.remaining -= n
		p = p[n:]
		if s.remaining > 0 {
			return nil
		}
		if err := s.emitCurrent(); err != nil {
			return err
		}
		s.state = stateHeader
	}
	if len(p) > 0 {
		s.buf = append(s.buf, p...)
	}
	return s.process()
}

// Finish validates that the scan reached the end-of-central-directory record
// and that the trailing directory agrees with the entries emitted.
func (s *Scanner) Finish() error {
	if s.state != stateDone {
		return fmt.Errorf("%w: truncated archive (%s at offset %d)", ziptype.ErrCorruptArchive, s.state, s.offset)
	}
	if s.hasExpected && s.expectedRecords != s.seq {
		return fmt.Errorf("%w: end record declares %d entries, scan found %d", ziptype.ErrCorruptArchive, s.expectedRecords, s.seq)
	}
	if s.centralRecords != s.seq {
		return fmt.Errorf("%w: central directory holds %d records, scan found %d entries", ziptype.ErrCorruptArchive, s.centralRecords, s.seq)
	}
	return nil
}

// Run pumps r through a new Scanner until EOF, checking ctx between chunks.
func Run(ctx context.Context, r io.Reader, emit EmitFunc, opts ...Option) error {
	s := New(emit, opts...)
	buf := make([]byte, defaultChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := s.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return s.Finish()
		}
		if err != nil {
			return err
		}
	}
}

// process advances the state machine until it runs out of buffered bytes.
func (s *Scanner) process() error {
	for {
		var progress bool
		var err error
		switch s.state {
		case stateHeader:
			progress, err = s.stepHeader()
		case statePayload:
			progress, err = s.stepPayload()
		case stateDescriptor:
			progress, err = s.stepDescriptor()
		case stateCentral:
			progress, err = s.stepCentral()
		case stateTrailer:
			progress, err = s.stepTrailer()
		case stateDone:
			// Bytes past the end record (e.g. archive padding) are ignored.
			return nil
		}
		if err != nil {
			return err
		}
		if !progress {
			return nil
		}
	}
}

func (s *Scanner) stepHeader() (bool, error) {
	if len(s.buf) < 4 {
		return false, nil
	}
	switch sig := binary.LittleEndian.Uint32(s.buf); sig {
	case zipfmt.LocalHeaderSignature:
		h, n, err := zipfmt.DecodeLocalHeader(s.buf)
		if errors.Is(err, zipfmt.ErrNeedMore) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("offset %d: %w", s.offset, err)
		}
		s.cur = ziptype.Entry{
			Name:             string(h.Name),
			Seq:              s.seq,
			HeaderOffset:     s.offset,
			CompressedSize:   h.CompressedSize,
			UncompressedSize: h.UncompressedSize,
			Method:           h.Method,
			CRC32:            h.CRC32,
			Flags:            h.Flags,
		}
		s.curZip64 = h.Zip64
		s.consume(n)
		if h.Flags&ziptype.FlagDescriptor != 0 {
			s.scanned = 0
			s.state = stateDescriptor
		} else {
			s.remaining = h.CompressedSize
			s.state = statePayload
		}
		return true, nil
	case zipfmt.CentralHeaderSignature:
		s.state = stateCentral
		return true, nil
	case zipfmt.EndOfCentralDirSignature, zipfmt.Zip64EndOfCentralDirSignature, zipfmt.Zip64LocatorSignature:
		s.state = stateTrailer
		return true, nil
	default:
		return false, fmt.Errorf("%w: unrecognized signature %#08x at offset %d", ziptype.ErrMalformedRecord, sig, s.offset)
	}
}

func (s *Scanner) stepPayload() (bool, error) {
	if s.remaining > 0 {
		n := uint64(len(s.buf))
		if n > s.remaining {
			n = s.remaining
		}
		if n == 0 {
			return false, nil
		}
		s.consume(int(n))
		s.remaining -= n
	}
	if s.remaining > 0 {
		return false, nil
	}
	if err := s.emitCurrent(); err != nil {
		return false, err
	}
	s.state = stateHeader
	return true, nil
}

// stepDescriptor searches the payload for the entry's data descriptor. The
// descriptor signature can also occur inside compressed payload bytes, so a
// candidate is accepted only when its compressed-size field matches the
// number of payload bytes scanned so far.
func (s *Scanner) stepDescriptor() (bool, error) {
	for {
		i := bytes.Index(s.buf, descriptorMagic)
		if i < 0 {
			// Keep a short tail in case the signature straddles chunks.
			keep := len(s.buf)
			if keep > len(descriptorMagic)-1 {
				keep = len(descriptorMagic) - 1
			}
			n := len(s.buf) - keep
			s.consume(n)
			s.scanned += uint64(n)
			if s.scanned > s.maxScan {
				return false, fmt.Errorf("%w: no data descriptor within %d bytes for entry %q", ziptype.ErrCorruptArchive, s.maxScan, s.cur.Name)
			}
			return false, nil
		}
		// The candidate sits at payload offset scanned+i; enforcing the limit
		// against that position keeps the outcome chunk-size independent.
		if s.scanned+uint64(i) > s.maxScan {
			return false, fmt.Errorf("%w: no data descriptor within %d bytes for entry %q", ziptype.ErrCorruptArchive, s.maxScan, s.cur.Name)
		}

		desc, n, ok := s.resolveDescriptor(i)
		if n == 0 {
			// Not enough buffered bytes to judge the candidate yet.
			s.consume(i)
			s.scanned += uint64(i)
			return false, nil
		}
		if ok {
			s.cur.CompressedSize = desc.CompressedSize
			s.cur.UncompressedSize = desc.UncompressedSize
			s.cur.CRC32 = desc.CRC32
			s.consume(i + n)
			if err := s.emitCurrent(); err != nil {
				return false, err
			}
			s.state = stateHeader
			return true, nil
		}

		// False positive inside the payload; advance past it and keep looking.
		s.consume(i + 1)
		s.scanned += uint64(i + 1)
	}
}

// resolveDescriptor decodes the descriptor candidate at buf[i:]. Entries
// whose local header carried a zip64 extra field always use the 64-bit size
// variant. For the rest the 32-bit variant is the norm, but streaming
// writers may emit 64-bit descriptors without the local header sentinel, so
// both variants are tried and the record signature following the candidate
// decides. Returns n == 0 when more buffered bytes are needed, ok == false
// when the candidate is a payload false positive.
func (s *Scanner) resolveDescriptor(i int) (zipfmt.DataDescriptor, int, bool) {
	want := s.scanned + uint64(i)

	if s.curZip64 {
		desc, n, err := zipfmt.DecodeDataDescriptor(s.buf[i:], true)
		if err != nil {
			return zipfmt.DataDescriptor{}, 0, false
		}
		return desc, n, desc.CompressedSize == want
	}

	// Judging the candidate takes both variants plus the signature of the
	// record that follows. A descriptor is never the archive's last record,
	// so the lookahead bytes always arrive on well-formed input.
	const lookahead = 4 + zipfmt.DataDescriptor64Len + 4
	if len(s.buf)-i < lookahead {
		return zipfmt.DataDescriptor{}, 0, false
	}
	if desc, n, err := zipfmt.DecodeDataDescriptor(s.buf[i:], false); err == nil &&
		desc.CompressedSize == want && isRecordSignature(s.buf[i+n:]) {
		return desc, n, true
	}
	if desc, n, err := zipfmt.DecodeDataDescriptor(s.buf[i:], true); err == nil &&
		desc.CompressedSize == want && isRecordSignature(s.buf[i+n:]) {
		return desc, n, true
	}
	return zipfmt.DataDescriptor{}, 1, false
}

// isRecordSignature reports whether b starts with a record signature that
// can legally follow a data descriptor.
func isRecordSignature(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	switch binary.LittleEndian.Uint32(b) {
	case zipfmt.LocalHeaderSignature, zipfmt.CentralHeaderSignature,
		zipfmt.EndOfCentralDirSignature, zipfmt.Zip64EndOfCentralDirSignature,
		zipfmt.Zip64LocatorSignature:
		return true
	}
	return false
}

func (s *Scanner) stepCentral() (bool, error) {
	if len(s.buf) < 4 {
		return false, nil
	}
	if binary.LittleEndian.Uint32(s.buf) != zipfmt.CentralHeaderSignature {
		s.state = stateTrailer
		return true, nil
	}
	_, n, err := zipfmt.DecodeCentralHeader(s.buf)
	if errors.Is(err, zipfmt.ErrNeedMore) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("offset %d: %w", s.offset, err)
	}
	s.centralRecords++
	s.consume(n)
	return true, nil
}

func (s *Scanner) stepTrailer() (bool, error) {
	if len(s.buf) < 4 {
		return false, nil
	}
	switch sig := binary.LittleEndian.Uint32(s.buf); sig {
	case zipfmt.Zip64EndOfCentralDirSignature:
		rec, n, err := zipfmt.DecodeZip64EndOfCentralDir(s.buf)
		if errors.Is(err, zipfmt.ErrNeedMore) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("offset %d: %w", s.offset, err)
		}
		s.expectedRecords = rec.TotalRecords
		s.hasExpected = true
		s.consume(n)
		return true, nil
	case zipfmt.Zip64LocatorSignature:
		if len(s.buf) < zipfmt.Zip64LocatorLen {
			return false, nil
		}
		s.consume(zipfmt.Zip64LocatorLen)
		return true, nil
	case zipfmt.EndOfCentralDirSignature:
		rec, n, err := zipfmt.DecodeEndOfCentralDir(s.buf)
		if errors.Is(err, zipfmt.ErrNeedMore) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("offset %d: %w", s.offset, err)
		}
		// The 16-bit count defers to the zip64 end record when saturated.
		if rec.TotalRecords != 0xffff || !s.hasExpected {
			s.expectedRecords = rec.TotalRecords
			s.hasExpected = true
		}
		s.consume(n)
		s.state = stateDone
		return true, nil
	default:
		return false, fmt.Errorf("%w: unrecognized trailer signature %#08x at offset %d", ziptype.ErrMalformedRecord, sig, s.offset)
	}
}

func (s *Scanner) emitCurrent() error {
	if err := s.emit(s.cur); err != nil {
		return err
	}
	s.seq++
	s.cur = ziptype.Entry{}
	return nil
}

func (s *Scanner) consume(n int) {
	s.buf = s.buf[n:]
	s.offset += uint64(n)
}
