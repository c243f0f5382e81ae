package format

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/msgtools/msgkit/internal/buf"
)

// DirEntry is one 128-byte directory record. Sibling links form a
// binary-search tree over names within one parent; Child points at the
// root of the subtree of children. See the offset table in consts.go.
type DirEntry struct {
	Name        string
	Type        uint8
	Color       uint8
	Left        uint32
	Right       uint32
	Child       uint32
	StartSector uint32
	Size        uint64
	Created     uint64 // raw FILETIME
	Modified    uint64 // raw FILETIME
}

// DecodeDirEntry decodes the record at the start of b. For version-3
// files only the low 32 bits of the size field are meaningful; the
// caller masks according to the header it parsed.
func DecodeDirEntry(b []byte) (DirEntry, error) {
	if len(b) < DirEntrySize {
		return DirEntry{}, fmt.Errorf("direntry: %w (have %d, need %d)", ErrTruncated, len(b), DirEntrySize)
	}
	nameLen := int(buf.U16LE(b[DirNameLenOffset:]))
	if nameLen > DirNameBytes || nameLen%2 != 0 {
		return DirEntry{}, fmt.Errorf("direntry: name length %d: %w", nameLen, ErrUnsupported)
	}
	name := ""
	if nameLen >= 2 {
		// The declared length includes the UTF-16 NUL terminator.
		name = buf.DecodeUTF16(b[DirNameOffset : DirNameOffset+nameLen])
	}
	return DirEntry{
		Name:        name,
		Type:        b[DirTypeOffset],
		Color:       b[DirColorOffset],
		Left:        buf.U32LE(b[DirLeftOffset:]),
		Right:       buf.U32LE(b[DirRightOffset:]),
		Child:       buf.U32LE(b[DirChildOffset:]),
		StartSector: buf.U32LE(b[DirStartOffset:]),
		Size:        buf.U64LE(b[DirSizeOffset:]),
		Created:     buf.U64LE(b[DirCreatedOffset:]),
		Modified:    buf.U64LE(b[DirModifiedOffset:]),
	}, nil
}

// EncodeDirEntry serializes e into the DirEntrySize bytes at the start
// of b. Unused sibling and child links must already be set to NoStream
// by the caller (the zero DirEntry is not a valid free record).
func EncodeDirEntry(e DirEntry, b []byte) error {
	if len(b) < DirEntrySize {
		return fmt.Errorf("direntry: %w (have %d, need %d)", ErrTruncated, len(b), DirEntrySize)
	}
	units := utf16.Encode([]rune(e.Name))
	if len(units)+1 > DirMaxNameUnits {
		return fmt.Errorf("direntry: name %q exceeds %d UTF-16 units", e.Name, DirMaxNameUnits-1)
	}
	clear(b[:DirEntrySize])
	for i, u := range units {
		buf.PutU16(b, DirNameOffset+i*2, u)
	}
	buf.PutU16(b, DirNameLenOffset, uint16((len(units)+1)*2))
	b[DirTypeOffset] = e.Type
	b[DirColorOffset] = e.Color
	buf.PutU32(b, DirLeftOffset, e.Left)
	buf.PutU32(b, DirRightOffset, e.Right)
	buf.PutU32(b, DirChildOffset, e.Child)
	buf.PutU64(b, DirCreatedOffset, e.Created)
	buf.PutU64(b, DirModifiedOffset, e.Modified)
	buf.PutU32(b, DirStartOffset, e.StartSector)
	buf.PutU64(b, DirSizeOffset, e.Size)
	return nil
}

// EncodeFreeDirEntry fills b with an unallocated directory record: all
// zero except the sibling/child links, which are NoStream.
func EncodeFreeDirEntry(b []byte) {
	clear(b[:DirEntrySize])
	buf.PutU32(b, DirLeftOffset, NoStream)
	buf.PutU32(b, DirRightOffset, NoStream)
	buf.PutU32(b, DirChildOffset, NoStream)
}

// CompareNames orders directory entry names the way the format requires:
// shorter UTF-16 encoding first, then case-insensitive lexicographic.
func CompareNames(a, b string) int {
	ua := utf16.Encode([]rune(strings.ToUpper(a)))
	ub := utf16.Encode([]rune(strings.ToUpper(b)))
	if len(ua) != len(ub) {
		if len(ua) < len(ub) {
			return -1
		}
		return 1
	}
	for i := range ua {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
