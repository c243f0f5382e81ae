package format

import (
	"bytes"
	"fmt"

	"github.com/msgtools/msgkit/internal/buf"
)

// Header captures the fields of the compound file header required to
// traverse the container. See the offset table in consts.go.
type Header struct {
	MinorVersion   uint16
	MajorVersion   uint16
	SectorShift    uint16
	DirSectors     uint32 // v4 only; zero for v3
	FATSectors     uint32
	FirstDirSector uint32
	FirstMiniFAT   uint32
	MiniFATSectors uint32
	FirstDIFAT     uint32
	DIFATSectors   uint32
	DIFAT          [HeaderDIFATSlots]uint32
}

// SectorSize returns the big-sector size selected by the version marker.
func (h Header) SectorSize() int {
	return 1 << h.SectorShift
}

// HasSignature reports whether b starts with the compound file magic.
// It never fails: short or foreign buffers simply return false, which is
// what lets callers fall back to other formats.
func HasSignature(b []byte) bool {
	return len(b) >= len(Signature) && bytes.Equal(b[:len(Signature)], Signature)
}

// ParseHeader validates and extracts the compound file header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("cfb header: %w (have %d, need %d)", ErrTruncated, len(b), HeaderSize)
	}
	if !HasSignature(b) {
		return Header{}, fmt.Errorf("cfb header: %w", ErrSignatureMismatch)
	}
	if order := buf.U16LE(b[HdrByteOrderOffset:]); order != ByteOrderMarker {
		return Header{}, fmt.Errorf("cfb header: byte order 0x%04X: %w", order, ErrUnsupported)
	}
	h := Header{
		MinorVersion:   buf.U16LE(b[HdrMinorVersionOffset:]),
		MajorVersion:   buf.U16LE(b[HdrMajorVersionOffset:]),
		SectorShift:    buf.U16LE(b[HdrSectorShiftOffset:]),
		DirSectors:     buf.U32LE(b[HdrDirSectorsOffset:]),
		FATSectors:     buf.U32LE(b[HdrFATSectorsOffset:]),
		FirstDirSector: buf.U32LE(b[HdrFirstDirOffset:]),
		FirstMiniFAT:   buf.U32LE(b[HdrFirstMiniFATOffset:]),
		MiniFATSectors: buf.U32LE(b[HdrMiniFATCountOffset:]),
		FirstDIFAT:     buf.U32LE(b[HdrFirstDIFATOffset:]),
		DIFATSectors:   buf.U32LE(b[HdrDIFATCountOffset:]),
	}
	switch h.SectorShift {
	case SectorShiftV3, SectorShiftV4:
	default:
		return Header{}, fmt.Errorf("cfb header: sector shift 0x%04X: %w", h.SectorShift, ErrUnsupported)
	}
	if shift := buf.U16LE(b[HdrMiniShiftOffset:]); shift != MiniSectorShift {
		return Header{}, fmt.Errorf("cfb header: mini sector shift 0x%04X: %w", shift, ErrUnsupported)
	}
	if h.FATSectors > MaxSectorCount || h.MiniFATSectors > MaxSectorCount {
		return Header{}, fmt.Errorf("cfb header: fat=%d minifat=%d: %w", h.FATSectors, h.MiniFATSectors, ErrSanityLimit)
	}
	if h.DIFATSectors > MaxDIFATSectors {
		return Header{}, fmt.Errorf("cfb header: difat=%d: %w", h.DIFATSectors, ErrSanityLimit)
	}
	for i := 0; i < HeaderDIFATSlots; i++ {
		h.DIFAT[i] = buf.U32LE(b[HdrDIFATOffset+i*4:])
	}
	return h, nil
}

// EncodeHeader serializes h into a fresh HeaderSize-byte buffer.
func EncodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	copy(b, Signature)
	buf.PutU16(b, HdrMinorVersionOffset, h.MinorVersion)
	buf.PutU16(b, HdrMajorVersionOffset, h.MajorVersion)
	buf.PutU16(b, HdrByteOrderOffset, ByteOrderMarker)
	buf.PutU16(b, HdrSectorShiftOffset, h.SectorShift)
	buf.PutU16(b, HdrMiniShiftOffset, MiniSectorShift)
	buf.PutU32(b, HdrDirSectorsOffset, h.DirSectors)
	buf.PutU32(b, HdrFATSectorsOffset, h.FATSectors)
	buf.PutU32(b, HdrFirstDirOffset, h.FirstDirSector)
	buf.PutU32(b, HdrMiniCutoffOffset, MiniStreamCutoff)
	buf.PutU32(b, HdrFirstMiniFATOffset, h.FirstMiniFAT)
	buf.PutU32(b, HdrMiniFATCountOffset, h.MiniFATSectors)
	buf.PutU32(b, HdrFirstDIFATOffset, h.FirstDIFAT)
	buf.PutU32(b, HdrDIFATCountOffset, h.DIFATSectors)
	for i := 0; i < HeaderDIFATSlots; i++ {
		buf.PutU32(b, HdrDIFATOffset+i*4, h.DIFAT[i])
	}
	return b
}
