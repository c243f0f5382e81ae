package msg_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgtools/msgkit/cfb"
	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
	"github.com/msgtools/msgkit/msg"
	"github.com/msgtools/msgkit/msg/recur"
)

// fileBuilder assembles synthetic .msg containers through the compound
// file writer, so every fixture in this file is itself a round-trip
// through the container layer.
type fileBuilder struct {
	entries []cfb.WriterEntry
}

func newFile() *fileBuilder {
	return &fileBuilder{entries: []cfb.WriterEntry{{Type: cfb.Root, Name: "Root Entry"}}}
}

func (f *fileBuilder) storage(parent int, name string) int {
	i := len(f.entries)
	f.entries = append(f.entries, cfb.WriterEntry{Type: cfb.Storage, Name: name})
	f.entries[parent].Children = append(f.entries[parent].Children, i)
	return i
}

func (f *fileBuilder) stream(parent int, name string, data []byte) {
	i := len(f.entries)
	f.entries = append(f.entries, cfb.WriterEntry{
		Type: cfb.Stream, Name: name, Size: uint64(len(data)),
		Bytes: func() ([]byte, error) { return data, nil },
	})
	f.entries[parent].Children = append(f.entries[parent].Children, i)
}

func (f *fileBuilder) bytes(t *testing.T) []byte {
	t.Helper()
	out, err := cfb.Write(f.entries)
	require.NoError(t, err)
	return out
}

func utf16Bytes(s string) []byte {
	w := buf.NewWritable()
	for _, r := range s {
		_ = w.WriteU16(uint16(r))
	}
	return w.Bytes()
}

func substgName(id, typ uint16) string {
	w := []byte("__substg1.0_")
	const hexDigits = "0123456789ABCDEF"
	for _, v := range []uint16{id, typ} {
		w = append(w, hexDigits[v>>12&0xF], hexDigits[v>>8&0xF], hexDigits[v>>4&0xF], hexDigits[v&0xF])
	}
	return string(w)
}

func (f *fileBuilder) unicodeProp(parent int, id uint16, value string) {
	f.stream(parent, substgName(id, msg.TypeUnicode), utf16Bytes(value))
}

func (f *fileBuilder) binaryProp(parent int, id uint16, value []byte) {
	f.stream(parent, substgName(id, msg.TypeBinary), value)
}

// packedRec is one 16-byte record of a __properties_version1.0 stream.
type packedRec struct {
	tag   uint32
	value []byte // at most 8 bytes, zero-padded
}

func packedI32(id uint16, v int32) packedRec {
	w := buf.NewWritable()
	_ = w.WriteU32(uint32(v))
	return packedRec{tag: uint32(id)<<16 | msg.TypeInt32, value: w.Bytes()}
}

func packedBool(id uint16, v bool) packedRec {
	val := []byte{0, 0}
	if v {
		val[0] = 1
	}
	return packedRec{tag: uint32(id)<<16 | msg.TypeBool, value: val}
}

func packedTime(id uint16, t time.Time) packedRec {
	w := buf.NewWritable()
	_ = w.WriteU64(format.TimeToFiletime(t))
	return packedRec{tag: uint32(id)<<16 | msg.TypeTime, value: w.Bytes()}
}

func (f *fileBuilder) packed(parent, headerSize int, recs ...packedRec) {
	w := buf.NewWritable()
	_ = w.WriteZero(headerSize)
	for _, r := range recs {
		_ = w.WriteU32(r.tag)
		_ = w.WriteU32(0) // flags
		_ = w.WriteBytes(r.value)
		_ = w.WriteZero(8 - len(r.value))
	}
	f.stream(parent, "__properties_version1.0", w.Bytes())
}

// guidBytes packs a registry-form GUID string little-endian.
func guidBytes(t *testing.T, guid string) []byte {
	t.Helper()
	parts := strings.Split(guid, "-")
	require.Len(t, parts, 5)
	hexVal := func(s string) uint64 {
		var v uint64
		for _, c := range strings.ToLower(s) {
			v <<= 4
			switch {
			case c >= '0' && c <= '9':
				v |= uint64(c - '0')
			case c >= 'a' && c <= 'f':
				v |= uint64(c-'a') + 10
			default:
				t.Fatalf("bad guid %q", guid)
			}
		}
		return v
	}
	w := buf.NewWritable()
	_ = w.WriteU32(uint32(hexVal(parts[0])))
	_ = w.WriteU16(uint16(hexVal(parts[1])))
	_ = w.WriteU16(uint16(hexVal(parts[2])))
	tail := parts[3] + parts[4]
	for i := 0; i < len(tail); i += 2 {
		_ = w.WriteU8(uint8(hexVal(tail[i : i+2])))
	}
	return w.Bytes()
}

// nameidEntry is one 8-byte record of the nameid entry stream.
type nameidEntry struct {
	keyOrOffset uint32
	isString    bool
	guidIndex   uint16
	propIndex   uint16
}

func (f *fileBuilder) nameid(t *testing.T, guids []string, entries []nameidEntry, stringStream []byte) {
	t.Helper()
	dir := f.storage(0, "__nameid_version1.0")

	gw := buf.NewWritable()
	for _, g := range guids {
		_ = gw.WriteBytes(guidBytes(t, g))
	}
	f.stream(dir, "__substg1.0_00020102", gw.Bytes())

	ew := buf.NewWritable()
	for _, e := range entries {
		_ = ew.WriteU32(e.keyOrOffset)
		packed := uint32(e.guidIndex) << 1
		if e.isString {
			packed |= 1
		}
		packed |= uint32(e.propIndex) << 16
		_ = ew.WriteU32(packed)
	}
	f.stream(dir, "__substg1.0_00030102", ew.Bytes())
	f.stream(dir, "__substg1.0_00040102", stringStream)
}

func TestDecodeBasicMessage(t *testing.T) {
	sent := time.Date(2024, 11, 5, 9, 30, 0, 0, time.UTC)

	f := newFile()
	f.unicodeProp(0, 0x0037, "Quarterly numbers")
	f.unicodeProp(0, 0x001A, "IPM.Note")
	f.unicodeProp(0, 0x0C1A, "Ada Lovelace")
	f.unicodeProp(0, 0x0C1F, "ada@example.com")
	f.unicodeProp(0, 0x1000, "See attachment.")
	f.packed(0, 32,
		packedI32(0x3FFD, 1252),
		packedBool(0x0E1B, true),
		packedTime(0x0039, sent),
	)

	rcpt := f.storage(0, "__recip_version1.0_#00000000")
	f.unicodeProp(rcpt, 0x3001, "Bob")
	f.unicodeProp(rcpt, 0x39FE, "bob@example.com")
	f.packed(rcpt, 8, packedI32(0x0C15, 1))

	att := f.storage(0, "__attach_version1.0_#00000000")
	f.unicodeProp(att, 0x3707, "report.pdf")
	f.binaryProp(att, 0x3701, []byte("%PDF-1.4 ..."))
	f.packed(att, 8, packedI32(0x3705, 1))

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "Quarterly numbers", m.Subject())
	assert.Equal(t, "IPM.Note", m.Class())
	assert.Equal(t, "Ada Lovelace", m.Props["senderName"])
	assert.Equal(t, "See attachment.", m.Props["body"])
	assert.Equal(t, true, m.Props["hasAttachments"])

	got, ok := m.Time("clientSubmitTime")
	require.True(t, ok)
	assert.True(t, got.Equal(sent))

	require.Len(t, m.Recipients, 1)
	assert.Equal(t, "to", m.Recipients[0].Kind)
	assert.Equal(t, "bob@example.com", m.Recipients[0].Props["smtpAddress"])

	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "report.pdf", m.Attachments[0].Filename())
	assert.Equal(t, []byte("%PDF-1.4 ..."), m.Attachments[0].Data())
	assert.Empty(t, m.Warnings)
}

func TestDecodeNonCompoundInput(t *testing.T) {
	_, err := msg.Decode([]byte("Subject: hello\r\n\r\nnot a compound file"), nil)
	assert.ErrorIs(t, err, cfb.ErrNotCompound)
}

// A raw FILETIME of zero (the 1601 epoch) decodes to the Unix epoch
// floor; a post-1970 sample round-trips to its ISO string.
func TestFiletimeProperties(t *testing.T) {
	f := newFile()
	f.packed(0, 32,
		packedRec{tag: uint32(0x3007)<<16 | msg.TypeTime, value: make([]byte, 8)},
		packedTime(0x3008, time.Date(2019, 7, 21, 12, 0, 30, 0, time.UTC)),
	)
	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)

	created, ok := m.Time("creationTime")
	require.True(t, ok)
	assert.Equal(t, "1970-01-01T00:00:00Z", created.Format(time.RFC3339))

	modified, ok := m.Time("lastModificationTime")
	require.True(t, ok)
	assert.Equal(t, "2019-07-21T12:00:30Z", modified.Format(time.RFC3339))
}

func TestRecipientTypeOrdering(t *testing.T) {
	f := newFile()
	kinds := []int32{3, 1, 2} // bcc, to, cc in storage order
	for i, k := range kinds {
		dir := f.storage(0, "__recip_version1.0_#0000000"+string(rune('0'+i)))
		f.packed(dir, 8, packedI32(0x0C15, k))
	}
	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)

	require.Len(t, m.Recipients, 3)
	assert.Equal(t, "to", m.Recipients[0].Kind)
	assert.Equal(t, "cc", m.Recipients[1].Kind)
	assert.Equal(t, "bcc", m.Recipients[2].Kind)
}

// An alias resolved through the GUID+entry tables must land on the same
// key as the static LID table, one LID per known property-set GUID.
func TestNamedPropertyResolution(t *testing.T) {
	const (
		psetidAppt    = "00062002-0000-0000-c000-000000000046"
		psetidCommon  = "00062008-0000-0000-c000-000000000046"
		psetidMeeting = "6ed8da90-450b-101b-98da-00aa003f1305"
		psetidTask    = "00062003-0000-0000-c000-000000000046"
	)

	f := newFile()
	f.nameid(t,
		[]string{psetidAppt, psetidCommon, psetidMeeting, psetidTask},
		[]nameidEntry{
			{keyOrOffset: 0x8208, guidIndex: 3, propIndex: 0}, // location
			{keyOrOffset: 0x8503, guidIndex: 4, propIndex: 1}, // reminderSet
			{keyOrOffset: 0x0003, guidIndex: 5, propIndex: 2}, // globalAppointmentId
			{keyOrOffset: 0x8104, guidIndex: 6, propIndex: 3}, // taskStartDate
			{keyOrOffset: 0xBEEF, guidIndex: 3, propIndex: 4}, // unknown LID
		},
		nil)

	f.unicodeProp(0, 0x8000, "Conference room B")
	f.binaryProp(0, 0x8002, []byte{0x04, 0x00, 0x8B})
	f.packed(0, 32,
		packedBool(0x8001, true),
		packedTime(0x8003, time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)),
	)
	f.unicodeProp(0, 0x8004, "mystery")

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "Conference room B", m.Props["location"])
	assert.Equal(t, true, m.Props["reminderSet"])
	assert.Equal(t, "04008B", m.Props["globalAppointmentId"], "binary id renders as uppercase hex")
	_, ok := m.Time("taskStartDate")
	assert.True(t, ok)
	assert.Equal(t, "mystery", m.Props["lid0000BEEF@"+psetidAppt])
}

func TestStringNamedProperty(t *testing.T) {
	// String stream: u32 byte length + UCS-2 name at offset 0.
	name := "Keywords"
	sw := buf.NewWritable()
	_ = sw.WriteU32(uint32(len(name) * 2))
	_ = sw.WriteBytes(utf16Bytes(name))

	f := newFile()
	f.nameid(t, nil,
		[]nameidEntry{{keyOrOffset: 0, isString: true, guidIndex: 2, propIndex: 0}},
		sw.Bytes())
	f.unicodeProp(0, 0x8000, "urgent,finance")

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "urgent,finance", m.Props["Keywords"])
}

func TestUnknownTagSyntheticKey(t *testing.T) {
	f := newFile()
	f.unicodeProp(0, 0x6790, "opaque")
	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "opaque", m.Props["6790T001F"])
}

func TestVotingOptionsJoined(t *testing.T) {
	blob := buildVerbBlob(t, []string{"Approve", "Reject"})

	f := newFile()
	f.nameid(t,
		[]string{"00062008-0000-0000-c000-000000000046"},
		[]nameidEntry{{keyOrOffset: 0x8520, guidIndex: 3, propIndex: 0}},
		nil)
	f.binaryProp(0, 0x8000, blob)

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Approve;Reject", m.Props["votingOptions"])
}

// buildVerbBlob writes a minimal two-pass verb stream whose verbs are
// all voting buttons.
func buildVerbBlob(t *testing.T, options []string) []byte {
	t.Helper()
	s := buf.NewWritable()
	narrow := func(text string) {
		_ = s.WriteU8(uint8(len(text)))
		_ = s.WriteBytes([]byte(text))
	}
	_ = s.WriteU16(0x0102)
	_ = s.WriteU32(uint32(len(options)))
	for _, o := range options {
		_ = s.WriteU32(1)
		narrow(o)
		narrow("IPM.Note")
		narrow("")
		narrow(o)
		_ = s.WriteU32(0)
		_ = s.WriteU8(0)
		_ = s.WriteU32(0)
		_ = s.WriteU32(0)
		_ = s.WriteU32(2)
		_ = s.WriteU32(0)
		_ = s.WriteU32(4) // voting verb ID
		_ = s.WriteU32(0)
	}
	_ = s.WriteU16(0x0104)
	for _, o := range options {
		for i := 0; i < 2; i++ {
			_ = s.WriteU8(uint8(len(o)))
			_ = s.WriteBytes(utf16Bytes(o))
		}
	}
	return s.Bytes()
}

// A corrupt recurrence blob drops the field with a warning instead of
// failing the message.
func TestRecurrenceFieldDropOnError(t *testing.T) {
	f := newFile()
	f.nameid(t,
		[]string{"00062002-0000-0000-c000-000000000046"},
		[]nameidEntry{{keyOrOffset: 0x8216, guidIndex: 3, propIndex: 0}},
		nil)
	f.binaryProp(0, 0x8000, []byte{0x01, 0x02, 0x03})

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	_, present := m.Props["appointmentRecur"]
	assert.False(t, present)
	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "appointmentRecur")
}

func TestRecurrenceFieldDecoded(t *testing.T) {
	blob := buildRecurBlob()

	f := newFile()
	f.nameid(t,
		[]string{"00062002-0000-0000-c000-000000000046"},
		[]nameidEntry{{keyOrOffset: 0x8216, guidIndex: 3, propIndex: 0}},
		nil)
	f.binaryProp(0, 0x8000, blob)

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	require.Empty(t, m.Warnings)

	p, ok := m.Props["appointmentRecur"].(*recur.Pattern)
	require.True(t, ok)
	assert.Equal(t, uint16(recur.FreqDaily), p.Frequency)
}

// buildRecurBlob writes a minimal valid daily pattern with no
// exceptions.
func buildRecurBlob() []byte {
	s := buf.NewWritable()
	for _, v := range []uint16{0x3004, 0x3004, recur.FreqDaily, recur.PatternDay, 1} {
		_ = s.WriteU16(v)
	}
	for _, v := range []uint32{0, 1440, 0, recur.EndAfterN, 5, 1, 0, 0, 0, 0, 0x3006, 0x3008, 540, 570} {
		_ = s.WriteU32(v)
	}
	_ = s.WriteU16(0) // exceptions
	_ = s.WriteU32(0) // reserved 1
	_ = s.WriteU32(0) // reserved 2
	return s.Bytes()
}

func TestRawObserver(t *testing.T) {
	f := newFile()
	f.unicodeProp(0, 0x0037, "observed")
	f.packed(0, 32, packedI32(0x3FFD, 1252))

	var tags []uint32
	opts := &msg.Options{RawObserver: func(tag uint32, raw []byte) {
		tags = append(tags, tag)
	}}
	_, err := msg.Decode(f.bytes(t), opts)
	require.NoError(t, err)
	assert.Contains(t, tags, uint32(0x0037001F))
	assert.Contains(t, tags, uint32(0x3FFD0003))
}

func TestString8Codepage(t *testing.T) {
	// "Привет" in Windows-1251.
	cyrillic := []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}

	f := newFile()
	f.stream(0, substgName(0x1000, msg.TypeString8), cyrillic)
	f.packed(0, 32, packedI32(0x3FFD, 1251))

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Привет", m.Props["body"])
}

// Some writers store the codepage as its own document stream instead of
// a packed record; it must steer string8 decoding all the same.
func TestString8CodepageFromStream(t *testing.T) {
	// "Привет" in Windows-1251.
	cyrillic := []byte{0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}

	f := newFile()
	f.stream(0, substgName(0x1000, msg.TypeString8), cyrillic)
	f.stream(0, substgName(0x3FFD, msg.TypeInt32), []byte{0xE3, 0x04, 0x00, 0x00})
	f.packed(0, 32)

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Привет", m.Props["body"])
}

func TestEmbeddedMessage(t *testing.T) {
	f := newFile()
	f.unicodeProp(0, 0x0037, "outer")

	att := f.storage(0, "__attach_version1.0_#00000000")
	f.packed(att, 8, packedI32(0x3705, msg.AttachMethodEmbedded))

	inner := f.storage(att, "__substg1.0_3701000D")
	f.unicodeProp(inner, 0x0037, "inner subject")
	f.unicodeProp(inner, 0x001A, "IPM.Note")

	m, err := msg.Decode(f.bytes(t), nil)
	require.NoError(t, err)
	require.Len(t, m.Attachments, 1)
	ref := m.Attachments[0].Embedded
	require.NotNil(t, ref)

	// In-place decode.
	sub, err := ref.Message(nil)
	require.NoError(t, err)
	assert.Equal(t, "inner subject", sub.Subject())

	// Re-serialization produces a standalone parseable .msg.
	raw, err := ref.Bytes()
	require.NoError(t, err)
	sub2, err := msg.Decode(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "inner subject", sub2.Subject())
	assert.Equal(t, "IPM.Note", sub2.Class())
}
