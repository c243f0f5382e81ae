// Package recur decodes the PidLidAppointmentRecur blob: a fixed
// RecurrencePattern header followed by per-instance exception records.
//
// The blob is consumed strictly sequentially. Exception records are
// variable-length (fields gated by an override bitmask), and the
// extended-exception block re-visits the same instances, so offsets in
// the later passes depend on exact consumption in the earlier ones: any
// misread surfaces as a version or reserved-field error rather than
// silently shifted data.
package recur

import (
	"fmt"
	"time"

	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
)

// Version constants. Both version pairs are fixed by the format; a
// mismatch means the blob is not a recurrence pattern at all.
const (
	readerVersion  = 0x3004
	writerVersion  = 0x3004
	readerVersion2 = 0x3006

	// extendedVersion2 is the writer version from which exception
	// records carry change-highlight and wide subject/location fields.
	extendedVersion2 = 0x3009
)

// Recurrence frequencies.
const (
	FreqDaily   = 0x200A
	FreqWeekly  = 0x200B
	FreqMonthly = 0x200C
	FreqYearly  = 0x200D
)

// Pattern types.
const (
	PatternDay      = 0x0000
	PatternWeek     = 0x0001
	PatternMonth    = 0x0002
	PatternMonthNth = 0x0003
	PatternMonthEnd = 0x0004
)

// End policies.
const (
	EndByDate     = 0x2021
	EndAfterN     = 0x2022
	EndNever      = 0x2023
	endNeverAlias = 0xFFFFFFFF // produced by some writers for EndNever
)

// Override flags gating the optional fields of an exception record.
const (
	AroSubject       = 0x0001
	AroMeetingType   = 0x0002
	AroReminderDelta = 0x0004
	AroReminder      = 0x0008
	AroLocation      = 0x0010
	AroBusyStatus    = 0x0020
	AroAttachment    = 0x0040
	AroSubType       = 0x0080
	AroApptColor     = 0x0100
)

// Exception is one overridden instance. Times are minutes since 1601 in
// the appointment's timezone, converted here to naive UTC time.Time
// values; the caller owns localization.
type Exception struct {
	Start         time.Time
	End           time.Time
	OriginalStart time.Time
	OverrideFlags uint16
	Subject       string // set when OverrideFlags&AroSubject
	Location      string // set when OverrideFlags&AroLocation
	MeetingType   uint32
	ReminderDelta uint32
	ReminderSet   uint32
	BusyStatus    uint32
	Attachment    uint32
	SubType       uint32
	ApptColor     uint32
}

// Pattern is the decoded recurrence blob.
type Pattern struct {
	Frequency    uint16
	PatternType  uint16
	CalendarType uint16
	FirstDate    uint32 // minutes since 1601
	Period       uint32
	// DayBits / Instance carry the pattern-type-specific words: a
	// weekday bitmask for weekly/monthly-nth patterns, a day number
	// for monthly patterns.
	DayBits  uint32
	Instance uint32

	EndType         uint32
	OccurrenceCount uint32
	FirstDOW        uint32

	DeletedInstances  []time.Time // sorted by the writer
	ModifiedInstances []time.Time

	Start time.Time
	End   time.Time

	StartTimeOffset uint32 // minutes after midnight
	EndTimeOffset   uint32

	Exceptions []Exception
}

// Decode parses an appointment recurrence blob. It fails fast on
// version mismatches and non-zero reserved fields, and requires the
// whole blob to be consumed: trailing bytes mean the exception walk went
// off the rails somewhere earlier.
func Decode(b []byte) (*Pattern, error) {
	s := buf.New(b)
	p := &Pattern{}

	rv, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	wv, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if rv != readerVersion || wv != writerVersion {
		return nil, fmt.Errorf("recur: version %04X/%04X: %w", rv, wv, format.ErrVersion)
	}

	if p.Frequency, err = s.ReadU16(); err != nil {
		return nil, err
	}
	if p.PatternType, err = s.ReadU16(); err != nil {
		return nil, err
	}
	if p.CalendarType, err = s.ReadU16(); err != nil {
		return nil, err
	}
	if p.FirstDate, err = s.ReadU32(); err != nil {
		return nil, err
	}
	if p.Period, err = s.ReadU32(); err != nil {
		return nil, err
	}
	if err = s.Skip(4); err != nil { // sliding flag
		return nil, err
	}

	switch p.PatternType {
	case PatternDay:
		// no pattern-specific words
	case PatternWeek, PatternMonth, PatternMonthEnd:
		if p.DayBits, err = s.ReadU32(); err != nil {
			return nil, err
		}
	case PatternMonthNth:
		if p.DayBits, err = s.ReadU32(); err != nil {
			return nil, err
		}
		if p.Instance, err = s.ReadU32(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("recur: pattern type %04X: %w", p.PatternType, format.ErrUnsupported)
	}

	if p.EndType, err = s.ReadU32(); err != nil {
		return nil, err
	}
	if p.EndType == endNeverAlias {
		p.EndType = EndNever
	}
	if p.OccurrenceCount, err = s.ReadU32(); err != nil {
		return nil, err
	}
	if p.FirstDOW, err = s.ReadU32(); err != nil {
		return nil, err
	}

	if p.DeletedInstances, err = readDateList(s); err != nil {
		return nil, fmt.Errorf("recur: deleted instances: %w", err)
	}
	if p.ModifiedInstances, err = readDateList(s); err != nil {
		return nil, fmt.Errorf("recur: modified instances: %w", err)
	}

	startDate, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	endDate, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	p.Start = format.MinutesToTime(startDate)
	p.End = format.MinutesToTime(endDate)

	rv2, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	wv2, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if rv2 != readerVersion2 {
		return nil, fmt.Errorf("recur: reader version2 %08X: %w", rv2, format.ErrVersion)
	}

	if p.StartTimeOffset, err = s.ReadU32(); err != nil {
		return nil, err
	}
	if p.EndTimeOffset, err = s.ReadU32(); err != nil {
		return nil, err
	}

	count, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if int(count) > len(b)/exceptionMinSize {
		return nil, fmt.Errorf("recur: %d exceptions in %d bytes: %w", count, len(b), format.ErrSanityLimit)
	}

	// Pass 1: the fixed exception records.
	p.Exceptions = make([]Exception, count)
	for i := range p.Exceptions {
		if err := readException(s, &p.Exceptions[i]); err != nil {
			return nil, fmt.Errorf("recur: exception %d: %w", i, err)
		}
	}

	reserved1, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if reserved1 != 0 {
		return nil, fmt.Errorf("recur: reserved block 1 size %d: %w", reserved1, format.ErrReserved)
	}

	// Pass 2: extended exception records, re-visiting each instance.
	for i := range p.Exceptions {
		if err := readExtendedException(s, &p.Exceptions[i], wv2); err != nil {
			return nil, fmt.Errorf("recur: extended exception %d: %w", i, err)
		}
	}

	reserved2, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if reserved2 != 0 {
		return nil, fmt.Errorf("recur: reserved block 2 size %d: %w", reserved2, format.ErrReserved)
	}

	if !s.EOF() {
		return nil, fmt.Errorf("recur: %d trailing bytes after reserved block 2", s.Remaining())
	}
	return p, nil
}

// exceptionMinSize is the smallest possible exception record (three
// dates plus the override mask), used only to sanity-bound the count.
const exceptionMinSize = 14

func readDateList(s *buf.Stream) ([]time.Time, error) {
	count, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count) > s.Remaining()/4 {
		return nil, fmt.Errorf("%d dates in %d bytes: %w", count, s.Remaining(), format.ErrSanityLimit)
	}
	raw, err := s.ReadU32Array(int(count))
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(raw))
	for i, m := range raw {
		out[i] = format.MinutesToTime(m)
	}
	return out, nil
}

func readException(s *buf.Stream, x *Exception) error {
	start, err := s.ReadU32()
	if err != nil {
		return err
	}
	end, err := s.ReadU32()
	if err != nil {
		return err
	}
	orig, err := s.ReadU32()
	if err != nil {
		return err
	}
	x.Start = format.MinutesToTime(start)
	x.End = format.MinutesToTime(end)
	x.OriginalStart = format.MinutesToTime(orig)

	if x.OverrideFlags, err = s.ReadU16(); err != nil {
		return err
	}
	if x.OverrideFlags&AroSubject != 0 {
		if x.Subject, err = readNarrowText(s); err != nil {
			return fmt.Errorf("subject: %w", err)
		}
	}
	if x.OverrideFlags&AroMeetingType != 0 {
		if x.MeetingType, err = s.ReadU32(); err != nil {
			return err
		}
	}
	if x.OverrideFlags&AroReminderDelta != 0 {
		if x.ReminderDelta, err = s.ReadU32(); err != nil {
			return err
		}
	}
	if x.OverrideFlags&AroReminder != 0 {
		if x.ReminderSet, err = s.ReadU32(); err != nil {
			return err
		}
	}
	if x.OverrideFlags&AroLocation != 0 {
		if x.Location, err = readNarrowText(s); err != nil {
			return fmt.Errorf("location: %w", err)
		}
	}
	if x.OverrideFlags&AroBusyStatus != 0 {
		if x.BusyStatus, err = s.ReadU32(); err != nil {
			return err
		}
	}
	if x.OverrideFlags&AroAttachment != 0 {
		if x.Attachment, err = s.ReadU32(); err != nil {
			return err
		}
	}
	if x.OverrideFlags&AroSubType != 0 {
		if x.SubType, err = s.ReadU32(); err != nil {
			return err
		}
	}
	if x.OverrideFlags&AroApptColor != 0 {
		if x.ApptColor, err = s.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

// readNarrowText reads the narrow subject/location encoding: a length
// including the terminator, the same length excluding it, then that many
// single-byte characters (no terminator actually stored).
func readNarrowText(s *buf.Stream) (string, error) {
	withNul, err := s.ReadU16()
	if err != nil {
		return "", err
	}
	n, err := s.ReadU16()
	if err != nil {
		return "", err
	}
	if withNul != n+1 {
		return "", fmt.Errorf("length fields %d/%d disagree: %w", withNul, n, format.ErrReserved)
	}
	return s.ReadString(int(n), nil)
}

func readExtendedException(s *buf.Stream, x *Exception, wv2 uint32) error {
	if wv2 >= extendedVersion2 {
		size, err := s.ReadU32()
		if err != nil {
			return err
		}
		// ChangeHighlight: a u32 value plus (size-4) reserved bytes.
		if size < 4 {
			return fmt.Errorf("change highlight size %d: %w", size, format.ErrReserved)
		}
		if err := s.Skip(int(size)); err != nil {
			return err
		}
	}
	reserved, err := s.ReadU32()
	if err != nil {
		return err
	}
	if reserved != 0 {
		return fmt.Errorf("reserved block EE1 size %d: %w", reserved, format.ErrReserved)
	}
	if x.OverrideFlags&(AroSubject|AroLocation) == 0 {
		return nil
	}

	// Re-read of the instance dates; they must match pass 1 but are
	// not cross-checked, matching the reference decoder.
	if err := s.Skip(12); err != nil {
		return err
	}
	if x.OverrideFlags&AroSubject != 0 {
		n, err := s.ReadU16()
		if err != nil {
			return err
		}
		wide, err := s.ReadUTF16(int(n) * 2)
		if err != nil {
			return err
		}
		x.Subject = wide
	}
	if x.OverrideFlags&AroLocation != 0 {
		n, err := s.ReadU16()
		if err != nil {
			return err
		}
		wide, err := s.ReadUTF16(int(n) * 2)
		if err != nil {
			return err
		}
		x.Location = wide
	}
	reserved, err = s.ReadU32()
	if err != nil {
		return err
	}
	if reserved != 0 {
		return fmt.Errorf("reserved block EE2 size %d: %w", reserved, format.ErrReserved)
	}
	return nil
}
