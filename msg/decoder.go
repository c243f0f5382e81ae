package msg

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/msgtools/msgkit/cfb"
	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
	"github.com/msgtools/msgkit/msg/recur"
	"github.com/msgtools/msgkit/msg/tzdef"
	"github.com/msgtools/msgkit/msg/verbs"
)

// Storage and stream naming inside a .msg container.
const (
	substgPrefix    = "__substg1.0_"
	recipPrefix     = "__recip_version1.0_#"
	attachPrefix    = "__attach_version1.0_#"
	packedPropsName = "__properties_version1.0"
)

// Packed __properties_version1.0 header sizes. Each 16-byte record that
// follows is tag, flags, then an 8-byte inline value or length field.
const (
	packedRecordSize   = 16
	packedRootHeader   = 32
	packedNestedHeader = 8
)

// Options tunes a decode. The zero value is a full plain decode.
type Options struct {
	// RawObserver, when set, receives every property's tag and raw
	// payload before type decoding. Diagnostics only; the payload
	// aliases the file buffer and must not be retained.
	RawObserver func(tag uint32, raw []byte)
}

// Decode parses b as a .msg file. Non-compound input fails with
// cfb.ErrNotCompound, letting callers fall back to EML parsing.
func Decode(b []byte, opts *Options) (*Message, error) {
	r, err := cfb.New(b)
	if err != nil {
		return nil, err
	}
	return DecodeReader(r, opts)
}

// DecodeReader decodes an already-parsed compound file.
func DecodeReader(r *cfb.Reader, opts *Options) (*Message, error) {
	if opts == nil {
		opts = &Options{}
	}
	root := r.RootFolder()
	names, err := loadNameTable(root)
	if err != nil {
		return nil, err
	}
	d := &decoder{r: r, names: names, opts: opts}
	return d.message(root, packedRootHeader)
}

type decoder struct {
	r     *cfb.Reader
	names nameTable
	opts  *Options
}

// rawProp is a property before type decoding: the tag plus either an
// inline packed value or a substg stream payload.
type rawProp struct {
	tag    uint32
	inline [8]byte
	data   []byte
	packed bool
}

func (p rawProp) id() uint16  { return uint16(p.tag >> 16) }
func (p rawProp) typ() uint16 { return uint16(p.tag) }

// message decodes one property bag plus, for the top-level message,
// its recipient and attachment child storages.
func (d *decoder) message(dir *cfb.Folder, headerSize int) (*Message, error) {
	m := &Message{Props: map[string]any{}}

	raw, err := d.collect(dir, headerSize)
	if err != nil {
		return nil, err
	}
	if err := d.apply(m.Props, raw, &m.Warnings); err != nil {
		return nil, err
	}

	for _, sub := range dir.SubFolders() {
		name := sub.Name()
		switch {
		case strings.HasPrefix(name, recipPrefix):
			rec, err := d.recipient(sub, &m.Warnings)
			if err != nil {
				return nil, fmt.Errorf("recipient %s: %w", name, err)
			}
			m.Recipients = append(m.Recipients, rec)
		case strings.HasPrefix(name, attachPrefix):
			att, err := d.attachment(sub, &m.Warnings)
			if err != nil {
				return nil, fmt.Errorf("attachment %s: %w", name, err)
			}
			m.Attachments = append(m.Attachments, att)
		}
	}
	sort.SliceStable(m.Recipients, func(i, j int) bool {
		return recipKindRank(m.Recipients[i].Kind) < recipKindRank(m.Recipients[j].Kind)
	})
	return m, nil
}

func recipKindRank(kind string) int {
	switch kind {
	case "to":
		return 0
	case "cc":
		return 1
	case "bcc":
		return 2
	}
	return 3
}

func (d *decoder) recipient(dir *cfb.Folder, warnings *[]string) (*Recipient, error) {
	raw, err := d.collect(dir, packedNestedHeader)
	if err != nil {
		return nil, err
	}
	rec := &Recipient{Props: map[string]any{}}
	if err := d.apply(rec.Props, raw, warnings); err != nil {
		return nil, err
	}
	rec.Kind, _ = rec.Props["recipientType"].(string)
	return rec, nil
}

func (d *decoder) attachment(dir *cfb.Folder, warnings *[]string) (*Attachment, error) {
	raw, err := d.collect(dir, packedNestedHeader)
	if err != nil {
		return nil, err
	}
	att := &Attachment{Props: map[string]any{}}
	if err := d.apply(att.Props, raw, warnings); err != nil {
		return nil, err
	}

	// An embedded message lives in a storage (not stream) named with
	// the attach-data tag and the object type.
	objName := fmt.Sprintf("%s%04X%04X", substgPrefix, idAttachDataObj, TypeObject)
	if sub, ok := dir.SubFolder(objName); ok {
		att.Embedded = &EmbeddedRef{r: d.r, index: sub.Index(), names: d.names}
	}
	return att, nil
}

// collect gathers the raw properties of one bag: every substg stream
// plus the fixed-typed records of the packed property stream.
func (d *decoder) collect(dir *cfb.Folder, headerSize int) ([]rawProp, error) {
	var out []rawProp

	for _, ref := range dir.Streams() {
		name := ref.Name()
		if !strings.HasPrefix(name, substgPrefix) {
			continue
		}
		tag, err := strconv.ParseUint(name[len(substgPrefix):], 16, 32)
		if err != nil {
			// Streams with non-tag suffixes are not property payloads.
			continue
		}
		data, err := ref.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, rawProp{tag: uint32(tag), data: data})
	}

	if ref, ok := dir.Stream(packedPropsName); ok {
		data, err := ref.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", packedPropsName, err)
		}
		packed, err := parsePacked(data, headerSize)
		if err != nil {
			return nil, err
		}
		out = append(out, packed...)
	}
	return out, nil
}

// parsePacked reads the fixed 16-byte records of a packed property
// stream. Variable-length types carry only their size here; the payload
// lives in the matching substg stream, so those records are skipped.
func parsePacked(data []byte, headerSize int) ([]rawProp, error) {
	s := buf.New(data)
	if err := s.Skip(headerSize); err != nil {
		return nil, fmt.Errorf("%s: header: %w", packedPropsName, err)
	}

	var out []rawProp
	for s.Remaining() >= packedRecordSize {
		tag, _ := s.ReadU32()
		if err := s.Skip(4); err != nil { // flags
			return nil, err
		}
		value, err := s.ReadBytes(8)
		if err != nil {
			return nil, err
		}
		if isVariableType(uint16(tag)) {
			continue
		}
		p := rawProp{tag: tag, packed: true}
		copy(p.inline[:], value)
		out = append(out, p)
	}
	return out, nil
}

func isVariableType(typ uint16) bool {
	switch typ {
	case TypeString8, TypeUnicode, TypeBinary, TypeObject, TypeGUID:
		return true
	}
	return typ&TypeMultiFlag != 0
}

// apply decodes raw properties into the bag. String8 decoding needs the
// bag's codepage, which is itself a property, so the codepage is
// resolved in a first pass over the raw records.
func (d *decoder) apply(props map[string]any, raw []rawProp, warnings *[]string) error {
	enc := d.resolveCodepage(raw)

	for _, p := range raw {
		if d.opts.RawObserver != nil {
			d.opts.RawObserver(p.tag, p.payload())
		}
		key, value, err := d.decodeProp(p, enc)
		if err != nil {
			return fmt.Errorf("property %08X: %w", p.tag, err)
		}
		key, value, drop := specialize(key, value, warnings)
		if drop {
			continue
		}
		props[key] = value
	}
	return nil
}

func (p rawProp) payload() []byte {
	if p.packed {
		return p.inline[:]
	}
	return p.data
}

// resolveCodepage finds the bag's string8 codepage, preferring the
// message codepage over the internet CPID and defaulting to 1252. The
// value counts whether it arrives packed or as its own document stream.
func (d *decoder) resolveCodepage(raw []rawProp) encoding.Encoding {
	cp := uint32(1252)
	found := false
	for _, p := range raw {
		if p.typ() != TypeInt32 {
			continue
		}
		b := p.payload()
		if len(b) < 4 {
			continue
		}
		switch p.id() {
		case idMessageCodepage:
			cp = buf.U32LE(b)
			found = true
		case idInternetCPID:
			if !found {
				cp = buf.U32LE(b)
			}
		}
	}
	return codepageEncoding(cp)
}

// decodeProp turns one raw property into its key and Go value.
func (d *decoder) decodeProp(p rawProp, enc encoding.Encoding) (string, any, error) {
	key := d.keyFor(p.id(), p.typ())

	switch p.typ() {
	case TypeString8:
		return key, buf.DecodeCodepage(p.data, enc), nil
	case TypeUnicode:
		return key, buf.DecodeUTF16(p.data), nil
	case TypeBinary:
		out := make([]byte, len(p.data))
		copy(out, p.data)
		return key, out, nil
	case TypeInt16:
		return key, int16(buf.U16LE(p.payload())), nil
	case TypeInt32, TypeError:
		return key, int32(buf.U32LE(p.payload())), nil
	case TypeInt64, TypeCurrency:
		return key, int64(buf.U64LE(p.payload())), nil
	case TypeFloat32:
		v, err := buf.New(p.payload()).ReadF32()
		return key, v, err
	case TypeFloat64, TypeApptTime:
		v, err := buf.New(p.payload()).ReadF64()
		return key, v, err
	case TypeBool:
		return key, buf.U16LE(p.payload()) != 0, nil
	case TypeTime:
		return key, format.FiletimeToTime(buf.U64LE(p.payload())), nil
	default:
		// Unrecognized type: pass the raw payload through under the
		// synthetic key so nothing is silently lost.
		out := make([]byte, len(p.payload()))
		copy(out, p.payload())
		return syntheticName(p.id(), p.typ()), out, nil
	}
}

// keyFor resolves a property ID to its Props key, going through the
// nameid table for file-local named properties.
func (d *decoder) keyFor(id, typ uint16) string {
	if id >= namedPropBase {
		if np, ok := d.names[id]; ok {
			return np.key()
		}
		return syntheticName(id, typ)
	}
	return propName(id, typ)
}

// specialize rewrites the handful of fields whose raw decoding is not
// the useful representation. A true drop means the property is omitted
// entirely (with a warning already recorded).
func specialize(key string, value any, warnings *[]string) (string, any, bool) {
	switch key {
	case "votingOptions":
		b, ok := value.([]byte)
		if !ok {
			return key, value, false
		}
		vs, err := verbs.Decode(b)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("votingOptions: %v", err))
			return key, value, true
		}
		return key, strings.Join(vs.VotingOptions(), ";"), false

	case "appointmentRecur":
		b, ok := value.([]byte)
		if !ok {
			return key, value, false
		}
		p, err := recur.Decode(b)
		if err != nil {
			// Field-level drop: a bad recurrence blob must not take
			// the whole message down.
			*warnings = append(*warnings, fmt.Sprintf("appointmentRecur: %v", err))
			return key, value, true
		}
		return key, p, false

	case "timeZoneStruct":
		b, ok := value.([]byte)
		if !ok {
			return key, value, false
		}
		r, err := tzdef.DecodeReg(b)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("timeZoneStruct: %v", err))
			return key, value, true
		}
		return key, r, false

	case "timeZoneDefinitionStart", "timeZoneDefinitionEnd":
		b, ok := value.([]byte)
		if !ok {
			return key, value, false
		}
		def, err := tzdef.Decode(b)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("%s: %v", key, err))
			return key, value, true
		}
		return key, def, false

	case "recipientType":
		if n, ok := value.(int32); ok {
			switch n {
			case 1:
				return key, "to", false
			case 2:
				return key, "cc", false
			case 3:
				return key, "bcc", false
			}
			return key, fmt.Sprintf("type%d", n), false
		}
		return key, value, false

	case "globalAppointmentId", "cleanGlobalAppointmentId":
		if b, ok := value.([]byte); ok {
			return key, strings.ToUpper(hex.EncodeToString(b)), false
		}
		return key, value, false
	}
	return key, value, false
}
