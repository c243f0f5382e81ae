package buf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrShortRead indicates a read past the declared end of the buffer.
	// Reads never zero-fill or truncate silently.
	ErrShortRead = errors.New("buf: read past end of buffer")
	// ErrFixedSize indicates a write past the end of a fixed-size stream.
	ErrFixedSize = errors.New("buf: write past end of fixed-size buffer")
)

// utf16le decodes UCS-2/UTF-16LE without consuming a BOM.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Stream is a seekable little-endian cursor over a byte buffer.
//
// A Stream created with New reads a caller-supplied buffer and rejects
// writes beyond its length. A Stream created with NewWritable owns a
// growable buffer: writes past the end extend it (doubling capacity),
// which is how the compound-file writer assembles its output.
//
// The cursor is always within [0, Len()]. All multi-byte reads and
// writes are little-endian; the compound file format and every MAPI
// blob layered on it are little-endian throughout.
type Stream struct {
	buf  []byte
	pos  int
	grow bool
}

// New returns a fixed-size Stream reading b. The Stream aliases b.
func New(b []byte) *Stream {
	return &Stream{buf: b}
}

// NewWritable returns an empty growable Stream for serialization.
func NewWritable() *Stream {
	return &Stream{buf: make([]byte, 0, 512), grow: true}
}

// Len returns the current buffer length.
func (s *Stream) Len() int { return len(s.buf) }

// Pos returns the cursor position.
func (s *Stream) Pos() int { return s.pos }

// Remaining returns the number of unread bytes.
func (s *Stream) Remaining() int { return len(s.buf) - s.pos }

// EOF reports whether the cursor is at the end of the buffer.
func (s *Stream) EOF() bool { return s.pos == len(s.buf) }

// Bytes returns the underlying buffer.
func (s *Stream) Bytes() []byte { return s.buf }

// Seek moves the cursor to pos, clamped to [0, Len()].
func (s *Stream) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.buf) {
		pos = len(s.buf)
	}
	s.pos = pos
}

// Skip advances the cursor by n bytes, failing if fewer remain.
func (s *Stream) Skip(n int) error {
	if _, err := s.take(n); err != nil {
		return err
	}
	return nil
}

// take returns the next n bytes and advances the cursor.
func (s *Stream) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("buf: negative read length %d", n)
	}
	end, ok := AddOverflowSafe(s.pos, n)
	if !ok || end > len(s.buf) {
		return nil, fmt.Errorf("%w (pos=%d, need=%d, len=%d)", ErrShortRead, s.pos, n, len(s.buf))
	}
	b := s.buf[s.pos:end]
	s.pos = end
	return b, nil
}

// ReadBytes returns the next n bytes. The result aliases the buffer.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	return s.take(n)
}

// ReadU8 reads an unsigned byte.
func (s *Stream) ReadU8() (uint8, error) {
	b, err := s.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (s *Stream) ReadU16() (uint16, error) {
	b, err := s.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (s *Stream) ReadU32() (uint32, error) {
	b, err := s.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (s *Stream) ReadU64() (uint64, error) {
	b, err := s.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI8 reads a signed byte.
func (s *Stream) ReadI8() (int8, error) {
	v, err := s.ReadU8()
	return int8(v), err
}

// ReadI16 reads a little-endian int16.
func (s *Stream) ReadI16() (int16, error) {
	v, err := s.ReadU16()
	return int16(v), err
}

// ReadI32 reads a little-endian int32.
func (s *Stream) ReadI32() (int32, error) {
	v, err := s.ReadU32()
	return int32(v), err
}

// ReadI64 reads a little-endian int64.
func (s *Stream) ReadI64() (int64, error) {
	v, err := s.ReadU64()
	return int64(v), err
}

// ReadF32 reads a little-endian float32.
func (s *Stream) ReadF32() (float32, error) {
	v, err := s.ReadU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads a little-endian float64.
func (s *Stream) ReadF64() (float64, error) {
	v, err := s.ReadU64()
	return math.Float64frombits(v), err
}

// ReadU32Array reads n little-endian uint32 values.
func (s *Stream) ReadU32Array(n int) ([]uint32, error) {
	if _, err := CheckListBounds(len(s.buf), s.pos, n, 4); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(s.buf[s.pos+i*4:])
	}
	s.pos += n * 4
	return out, nil
}

// ReadUTF16 reads n bytes and decodes them as UTF-16LE, trimming at the
// first embedded NUL.
func (s *Stream) ReadUTF16(n int) (string, error) {
	b, err := s.take(n)
	if err != nil {
		return "", err
	}
	return DecodeUTF16(b), nil
}

// ReadString reads n bytes and decodes them with enc (a single-byte
// codepage), trimming at the first embedded NUL. A nil enc decodes the
// bytes as UTF-8.
func (s *Stream) ReadString(n int, enc encoding.Encoding) (string, error) {
	b, err := s.take(n)
	if err != nil {
		return "", err
	}
	return DecodeCodepage(b, enc), nil
}

// ensure grows or validates the buffer so that n bytes can be written at
// the cursor. Growable streams at least double their capacity.
func (s *Stream) ensure(n int) error {
	end, ok := AddOverflowSafe(s.pos, n)
	if !ok {
		return fmt.Errorf("buf: write length overflow (pos=%d, n=%d)", s.pos, n)
	}
	if end <= len(s.buf) {
		return nil
	}
	if !s.grow {
		return fmt.Errorf("%w (pos=%d, need=%d, len=%d)", ErrFixedSize, s.pos, n, len(s.buf))
	}
	if end <= cap(s.buf) {
		s.buf = s.buf[:end]
		return nil
	}
	newCap := cap(s.buf) * 2
	if newCap < end {
		newCap = end
	}
	nb := make([]byte, end, newCap)
	copy(nb, s.buf)
	s.buf = nb
	return nil
}

// WriteBytes writes b at the cursor.
func (s *Stream) WriteBytes(b []byte) error {
	if err := s.ensure(len(b)); err != nil {
		return err
	}
	copy(s.buf[s.pos:], b)
	s.pos += len(b)
	return nil
}

// WriteZero writes n zero bytes at the cursor.
func (s *Stream) WriteZero(n int) error {
	if err := s.ensure(n); err != nil {
		return err
	}
	clear(s.buf[s.pos : s.pos+n])
	s.pos += n
	return nil
}

// WriteU8 writes an unsigned byte.
func (s *Stream) WriteU8(v uint8) error {
	if err := s.ensure(1); err != nil {
		return err
	}
	s.buf[s.pos] = v
	s.pos++
	return nil
}

// WriteU16 writes a little-endian uint16.
func (s *Stream) WriteU16(v uint16) error {
	if err := s.ensure(2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(s.buf[s.pos:], v)
	s.pos += 2
	return nil
}

// WriteU32 writes a little-endian uint32.
func (s *Stream) WriteU32(v uint32) error {
	if err := s.ensure(4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s.buf[s.pos:], v)
	s.pos += 4
	return nil
}

// WriteU64 writes a little-endian uint64.
func (s *Stream) WriteU64(v uint64) error {
	if err := s.ensure(8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(s.buf[s.pos:], v)
	s.pos += 8
	return nil
}

// DecodeUTF16 decodes UTF-16LE bytes, trimming at the first NUL unit.
func DecodeUTF16(b []byte) string {
	// Trim at the first 16-bit NUL.
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]
			break
		}
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		// The decoder replaces invalid units rather than failing; an
		// error here means an odd trailing byte, which we drop.
		return string(out)
	}
	return string(out)
}

// DecodeCodepage decodes single-byte codepage bytes, trimming at the
// first NUL. A nil encoding decodes as UTF-8.
func DecodeCodepage(b []byte, enc encoding.Encoding) string {
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	if enc == nil {
		return string(b)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
