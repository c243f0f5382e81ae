package msg

import (
	"fmt"

	"github.com/msgtools/msgkit/cfb"
	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
)

// Named-property infrastructure. Property IDs at or above 0x8000 are
// file-local aliases: the __nameid_version1.0 storage maps each one to
// either a {GUID, numeric LID} pair or a {GUID, string} pair. The
// decoder builds the alias table once per file and resolves every high
// ID through it.

const namedPropBase = 0x8000

// Stream names inside the nameid storage.
const (
	nameidStorage     = "__nameid_version1.0"
	nameidGUIDStream  = "__substg1.0_00020102"
	nameidEntryStream = "__substg1.0_00030102"
	nameidStrStream   = "__substg1.0_00040102"
)

// Well-known property-set GUIDs, formatted the way guidString renders
// them.
const (
	psMAPI          = "00020328-0000-0000-c000-000000000046"
	psPublicStrings = "00020329-0000-0000-c000-000000000046"
	psetidCommon    = "00062008-0000-0000-c000-000000000046"
	psetidAppt      = "00062002-0000-0000-c000-000000000046"
	psetidTask      = "00062003-0000-0000-c000-000000000046"
	psetidAddress   = "00062004-0000-0000-c000-000000000046"
	psetidMeeting   = "6ed8da90-450b-101b-98da-00aa003f1305"
	psetidLog       = "0006200a-0000-0000-c000-000000000046"
)

// lidNames maps {property-set GUID, LID} to the field names surfaced in
// Message.Props, for the calendar/task/appointment sets the decoder
// specializes on. Unlisted LIDs get a synthetic key.
var lidNames = map[string]map[uint32]string{
	psetidAppt: {
		0x8205: "busyStatus",
		0x8208: "location",
		0x820D: "appointmentStart",
		0x820E: "appointmentEnd",
		0x8213: "appointmentDuration",
		0x8215: "allDayEvent",
		0x8216: "appointmentRecur",
		0x8223: "recurring",
		0x8231: "recurrenceType",
		0x8232: "recurrencePattern",
		0x8233: "timeZoneStruct",
		0x8234: "timeZoneDescription",
		0x8235: "clipStart",
		0x8236: "clipEnd",
		0x825E: "timeZoneDefinitionStart",
		0x825F: "timeZoneDefinitionEnd",
	},
	psetidCommon: {
		0x8501: "reminderMinutesBeforeStart",
		0x8502: "reminderTime",
		0x8503: "reminderSet",
		0x8520: "votingOptions",
		0x8524: "votingResponse",
		0x8530: "flagRequest",
		0x8580: "internetAccountName",
	},
	psetidMeeting: {
		0x0003: "globalAppointmentId",
		0x0023: "cleanGlobalAppointmentId",
		0x0024: "appointmentMessageClass",
		0x0026: "meetingType",
	},
	psetidTask: {
		0x8101: "taskStatus",
		0x8102: "percentComplete",
		0x8104: "taskStartDate",
		0x8105: "taskDueDate",
		0x810F: "taskDateCompleted",
		0x811C: "taskComplete",
		0x8121: "taskAssigner",
		0x8127: "taskOwner",
	},
	psetidLog: {
		0x8700: "logType",
		0x8706: "logStart",
		0x8708: "logEnd",
		0x8711: "logFlags",
	},
}

// namedProp is one resolved nameid entry.
type namedProp struct {
	guid string
	lid  uint32 // numeric key, when name == ""
	name string // string key, when non-empty
}

// key returns the Props key for the named property: its string name, a
// known LID field name, or a synthetic key.
func (n namedProp) key() string {
	if n.name != "" {
		return n.name
	}
	if set, ok := lidNames[n.guid]; ok {
		if name, ok := set[n.lid]; ok {
			return name
		}
	}
	return fmt.Sprintf("lid%08X@%s", n.lid, n.guid)
}

// syntheticName is the fallback key for unknown transport tags.
func syntheticName(id, typ uint16) string {
	return fmt.Sprintf("%04XT%04X", id, typ)
}

// nameTable maps property IDs >= 0x8000 to their resolved entries.
type nameTable map[uint16]namedProp

// loadNameTable builds the alias table from the root's nameid storage.
// A missing storage is fine (plain messages have none); a malformed one
// is an error.
func loadNameTable(root *cfb.Folder) (nameTable, error) {
	dir, ok := root.SubFolder(nameidStorage)
	if !ok {
		return nameTable{}, nil
	}

	readAll := func(name string) ([]byte, error) {
		ref, ok := dir.Stream(name)
		if !ok {
			return nil, fmt.Errorf("nameid: %s: %w", name, format.ErrNotFound)
		}
		return ref.Bytes()
	}

	guids, err := readAll(nameidGUIDStream)
	if err != nil {
		return nil, err
	}
	entries, err := readAll(nameidEntryStream)
	if err != nil {
		return nil, err
	}
	strs, err := readAll(nameidStrStream)
	if err != nil {
		return nil, err
	}

	// Fixed 8-byte entry records, consumed to end of stream.
	table := make(nameTable, len(entries)/8)
	s := buf.New(entries)
	for i := 0; s.Remaining() >= 8; i++ {
		keyOrOffset, _ := s.ReadU32()
		packed, _ := s.ReadU32()

		isString := packed&0x0001 != 0
		guidIndex := uint16(packed >> 1 & 0x7FFF)
		propIndex := uint16(packed >> 16)

		np := namedProp{guid: guidForIndex(guids, guidIndex)}
		if np.guid == "" {
			return nil, fmt.Errorf("nameid: entry %d: guid index %d out of range", i, guidIndex)
		}
		if isString {
			name, err := stringAt(strs, keyOrOffset)
			if err != nil {
				return nil, fmt.Errorf("nameid: entry %d: %w", i, err)
			}
			np.name = name
		} else {
			np.lid = keyOrOffset
		}
		table[namedPropBase+propIndex] = np
	}
	return table, nil
}

// guidForIndex resolves a nameid guid index: 1 and 2 are the fixed
// PS_MAPI / PS_PUBLIC_STRINGS sets, 3+ index the guid stream.
func guidForIndex(guids []byte, idx uint16) string {
	switch idx {
	case 1:
		return psMAPI
	case 2:
		return psPublicStrings
	}
	if idx < 3 {
		return ""
	}
	off := int(idx-3) * 16
	if off+16 > len(guids) {
		return ""
	}
	return guidString(guids[off : off+16])
}

// guidString formats a little-endian packed GUID in registry form.
func guidString(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		buf.U32LE(b), buf.U16LE(b[4:]), buf.U16LE(b[6:]),
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}

// stringAt reads a length-prefixed UCS-2 name from the string stream.
func stringAt(strs []byte, offset uint32) (string, error) {
	s := buf.New(strs)
	s.Seek(int(offset))
	n, err := s.ReadU32()
	if err != nil {
		return "", fmt.Errorf("string offset %d: %w", offset, err)
	}
	return s.ReadUTF16(int(n))
}
