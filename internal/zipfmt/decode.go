package zipfmt

import (
	"encoding/binary"
	"fmt"

	"github.com/edzip/edzip/internal/ziptype"
)

// DecodeLocalHeader decodes one local file header from the front of buf,
// returning the header and the number of bytes consumed (fixed portion plus
// name and extra fields).
func DecodeLocalHeader(buf []byte) (LocalHeader, int, error) {
	if len(buf) < LocalHeaderLen {
		return LocalHeader{}, 0, ErrNeedMore
	}
	b := readBuf(buf)
	if sig := b.uint32(); sig != LocalHeaderSignature {
		return LocalHeader{}, 0, fmt.Errorf("%w: local header signature %#08x", ziptype.ErrMalformedRecord, sig)
	}

	var h LocalHeader
	h.ReaderVersion = b.uint16()
	h.Flags = b.uint16()
	h.Method = ziptype.Method(b.uint16())
	h.ModTime = b.uint16()
	h.ModDate = b.uint16()
	h.CRC32 = b.uint32()
	compressed := b.uint32()
	uncompressed := b.uint32()
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())

	total := LocalHeaderLen + nameLen + extraLen
	if len(buf) < total {
		return LocalHeader{}, 0, ErrNeedMore
	}
	h.Name = buf[LocalHeaderLen : LocalHeaderLen+nameLen]
	h.CompressedSize = uint64(compressed)
	h.UncompressedSize = uint64(uncompressed)

	if compressed == uint32Max || uncompressed == uint32Max {
		extra := buf[LocalHeaderLen+nameLen : total]
		fields := make([]*uint64, 0, 2)
		if uncompressed == uint32Max {
			fields = append(fields, &h.UncompressedSize)
		}
		if compressed == uint32Max {
			fields = append(fields, &h.CompressedSize)
		}
		if err := zip64Fields(extra, fields); err != nil {
			return LocalHeader{}, 0, err
		}
		h.Zip64 = true
	}
	return h, total, nil
}

// LocalHeaderSize returns the full byte length of the local header whose
// fixed portion fills buf. It is used to re-measure a header's
// variable-length fields when computing a payload offset.
func LocalHeaderSize(buf []byte) (int, error) {
	if len(buf) < LocalHeaderLen {
		return 0, ErrNeedMore
	}
	if sig := binary.LittleEndian.Uint32(buf); sig != LocalHeaderSignature {
		return 0, fmt.Errorf("%w: local header signature %#08x", ziptype.ErrMalformedRecord, sig)
	}
	nameLen := binary.LittleEndian.Uint16(buf[26:])
	extraLen := binary.LittleEndian.Uint16(buf[28:])
	return LocalHeaderLen + int(nameLen) + int(extraLen), nil
}

// DecodeDataDescriptor decodes a trailing data descriptor from the front of
// buf. The optional leading signature word is consumed when present. zip64
// selects the 64-bit size variant, which entries with zip64 local headers use.
func DecodeDataDescriptor(buf []byte, zip64 bool) (DataDescriptor, int, error) {
	if len(buf) < 4 {
		return DataDescriptor{}, 0, ErrNeedMore
	}
	n := 0
	if binary.LittleEndian.Uint32(buf) == DataDescriptorSignature {
		buf = buf[4:]
		n = 4
	}

	need := DataDescriptorLen
	if zip64 {
		need = DataDescriptor64Len
	}
	if len(buf) < need {
		return DataDescriptor{}, 0, ErrNeedMore
	}

	b := readBuf(buf)
	var d DataDescriptor
	d.CRC32 = b.uint32()
	if zip64 {
		d.CompressedSize = b.uint64()
		d.UncompressedSize = b.uint64()
	} else {
		d.CompressedSize = uint64(b.uint32())
		d.UncompressedSize = uint64(b.uint32())
	}
	return d, n + need, nil
}

// DecodeCentralHeader decodes one central directory header from the front of
// buf, returning the header and the number of bytes consumed.
func DecodeCentralHeader(buf []byte) (CentralHeader, int, error) {
	if len(buf) < CentralHeaderLen {
		return CentralHeader{}, 0, ErrNeedMore
	}
	b := readBuf(buf)
	if sig := b.uint32(); sig != CentralHeaderSignature {
		return CentralHeader{}, 0, fmt.Errorf("%w: central header signature %#08x", ziptype.ErrMalformedRecord, sig)
	}

	var h CentralHeader
	_ = b.uint16() // creator version
	_ = b.uint16() // reader version
	h.Flags = b.uint16()
	h.Method = ziptype.Method(b.uint16())
	_ = b.uint16() // modified time
	_ = b.uint16() // modified date
	h.CRC32 = b.uint32()
	compressed := b.uint32()
	uncompressed := b.uint32()
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())
	commentLen := int(b.uint16())
	_ = b.uint16() // disk number start
	_ = b.uint16() // internal attributes
	_ = b.uint32() // external attributes
	offset := b.uint32()

	total := CentralHeaderLen + nameLen + extraLen + commentLen
	if len(buf) < total {
		return CentralHeader{}, 0, ErrNeedMore
	}
	h.Name = buf[CentralHeaderLen : CentralHeaderLen+nameLen]
	h.CompressedSize = uint64(compressed)
	h.UncompressedSize = uint64(uncompressed)
	h.HeaderOffset = uint64(offset)

	if compressed == uint32Max || uncompressed == uint32Max || offset == uint32Max {
		extra := buf[CentralHeaderLen+nameLen : CentralHeaderLen+nameLen+extraLen]
		fields := make([]*uint64, 0, 3)
		if uncompressed == uint32Max {
			fields = append(fields, &h.UncompressedSize)
		}
		if compressed == uint32Max {
			fields = append(fields, &h.CompressedSize)
		}
		if offset == uint32Max {
			fields = append(fields, &h.HeaderOffset)
		}
		if err := zip64Fields(extra, fields); err != nil {
			return CentralHeader{}, 0, err
		}
	}
	return h, total, nil
}

// DecodeEndOfCentralDir decodes the end-of-central-directory record from the
// front of buf, including its trailing comment.
func DecodeEndOfCentralDir(buf []byte) (EndOfCentralDir, int, error) {
	if len(buf) < EndOfCentralDirLen {
		return EndOfCentralDir{}, 0, ErrNeedMore
	}
	b := readBuf(buf)
	if sig := b.uint32(); sig != EndOfCentralDirSignature {
		return EndOfCentralDir{}, 0, fmt.Errorf("%w: end of central directory signature %#08x", ziptype.ErrMalformedRecord, sig)
	}

	var e EndOfCentralDir
	_ = b.uint16() // disk number
	_ = b.uint16() // directory start disk
	_ = b.uint16() // records on this disk
	e.TotalRecords = uint64(b.uint16())
	e.DirectorySize = uint64(b.uint32())
	e.DirectoryOffset = uint64(b.uint32())
	commentLen := int(b.uint16())

	total := EndOfCentralDirLen + commentLen
	if len(buf) < total {
		return EndOfCentralDir{}, 0, ErrNeedMore
	}
	return e, total, nil
}

// DecodeZip64EndOfCentralDir decodes the zip64 end-of-central-directory
// record, including any extensible data it declares.
func DecodeZip64EndOfCentralDir(buf []byte) (EndOfCentralDir, int, error) {
	if len(buf) < Zip64EndOfCentralDirLen {
		return EndOfCentralDir{}, 0, ErrNeedMore
	}
	b := readBuf(buf)
	if sig := b.uint32(); sig != Zip64EndOfCentralDirSignature {
		return EndOfCentralDir{}, 0, fmt.Errorf("%w: zip64 end of central directory signature %#08x", ziptype.ErrMalformedRecord, sig)
	}

	recordSize := b.uint64()
	if recordSize < Zip64EndOfCentralDirLen-12 {
		return EndOfCentralDir{}, 0, fmt.Errorf("%w: zip64 end record size %d", ziptype.ErrMalformedRecord, recordSize)
	}
	total := 12 + int(recordSize)
	if len(buf) < total {
		return EndOfCentralDir{}, 0, ErrNeedMore
	}

	var e EndOfCentralDir
	_ = b.uint16() // creator version
	_ = b.uint16() // reader version
	_ = b.uint32() // disk number
	_ = b.uint32() // directory start disk
	_ = b.uint64() // records on this disk
	e.TotalRecords = b.uint64()
	e.DirectorySize = b.uint64()
	e.DirectoryOffset = b.uint64()
	return e, total, nil
}

// zip64Fields reads widened values from the 0x0001 extra field into fields,
// in the order they appear on the wire. Callers append pointers only for the
// legacy fields that held the all-ones sentinel, matching the field order
// uncompressed size, compressed size, header offset.
func zip64Fields(extra []byte, fields []*uint64) error {
	for len(extra) >= 4 {
		b := readBuf(extra)
		id := b.uint16()
		size := int(b.uint16())
		if size > len(b) {
			return fmt.Errorf("%w: extra field %#04x overruns extra block", ziptype.ErrMalformedRecord, id)
		}
		if id != zip64ExtraID {
			extra = extra[4+size:]
			continue
		}
		if size < 8*len(fields) {
			return fmt.Errorf("%w: zip64 extra field holds %d bytes, need %d", ziptype.ErrMalformedRecord, size, 8*len(fields))
		}
		for _, p := range fields {
			*p = b.uint64()
		}
		return nil
	}
	return fmt.Errorf("%w: zip64 sizes declared but no zip64 extra field", ziptype.ErrMalformedRecord)
}
