// Package tzdef decodes the Outlook timezone blobs: the stream form
// (TZDEFINITION, carrying a display name and a year-keyed rule list) and
// the legacy registry form (TZREG, a single bias/transition record).
package tzdef

import (
	"fmt"

	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
)

const (
	majorVersion = 0x02
	minorVersion = 0x01
)

// Rule flags.
const (
	FlagRecurCurrent = 0x0001 // rule in effect for the current year
	FlagEffectiveTZ  = 0x0002 // rule matches the writer's effective timezone
)

// SystemTime is the eight-word Windows SYSTEMTIME layout. For timezone
// transitions Year is zero and Day means "nth DayOfWeek in Month" (5 =
// last).
type SystemTime struct {
	Year      uint16
	Month     uint16
	DayOfWeek uint16
	Day       uint16
	Hour      uint16
	Minute    uint16
	Second    uint16
	Millis    uint16
}

// Rule is one TZRULE record: the biases plus the yearly standard and
// daylight transition dates, keyed by the first year it applies to.
type Rule struct {
	Flags        uint16
	StartYear    uint16
	Bias         int32 // minutes, UTC = local + bias
	StandardBias int32
	DaylightBias int32
	StandardDate SystemTime
	DaylightDate SystemTime
}

// Definition is a decoded TZDEFINITION stream.
type Definition struct {
	KeyName string // registry key name, e.g. "W. Europe Standard Time"
	Rules   []Rule
}

// EffectiveRule returns the rule flagged as the writer's effective
// timezone, falling back to the last rule.
func (d *Definition) EffectiveRule() (Rule, bool) {
	for _, r := range d.Rules {
		if r.Flags&FlagEffectiveTZ != 0 {
			return r, true
		}
	}
	if len(d.Rules) == 0 {
		return Rule{}, false
	}
	return d.Rules[len(d.Rules)-1], true
}

// Decode parses a TZDEFINITION blob (PidLidAppointmentTimeZoneDefinition*).
func Decode(b []byte) (*Definition, error) {
	s := buf.New(b)

	major, err := s.ReadU8()
	if err != nil {
		return nil, err
	}
	minor, err := s.ReadU8()
	if err != nil {
		return nil, err
	}
	if major != majorVersion || minor != minorVersion {
		return nil, fmt.Errorf("tzdef: version %d.%d: %w", major, minor, format.ErrVersion)
	}

	// cbHeader counts the bytes from the reserved word through the key
	// name; it is not cross-checked beyond being readable.
	if _, err = s.ReadU16(); err != nil {
		return nil, err
	}
	if _, err = s.ReadU16(); err != nil { // reserved
		return nil, err
	}

	nameLen, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	name, err := s.ReadUTF16(int(nameLen) * 2)
	if err != nil {
		return nil, fmt.Errorf("tzdef: key name: %w", err)
	}

	ruleCount, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if int(ruleCount) > s.Remaining()/ruleMinSize {
		return nil, fmt.Errorf("tzdef: %d rules in %d bytes: %w", ruleCount, s.Remaining(), format.ErrSanityLimit)
	}

	d := &Definition{KeyName: name, Rules: make([]Rule, ruleCount)}
	for i := range d.Rules {
		if err := readRule(s, &d.Rules[i]); err != nil {
			return nil, fmt.Errorf("tzdef: rule %d: %w", i, err)
		}
	}
	return d, nil
}

// ruleMinSize is the fixed TZRULE size past its own header word.
const ruleMinSize = 2 + 2 + 2 + 2 + 12 + 32

func readRule(s *buf.Stream, r *Rule) error {
	major, err := s.ReadU8()
	if err != nil {
		return err
	}
	minor, err := s.ReadU8()
	if err != nil {
		return err
	}
	if major != majorVersion || minor != minorVersion {
		return fmt.Errorf("version %d.%d: %w", major, minor, format.ErrVersion)
	}
	if _, err = s.ReadU16(); err != nil { // cbRule
		return err
	}
	if r.Flags, err = s.ReadU16(); err != nil {
		return err
	}
	if r.StartYear, err = s.ReadU16(); err != nil {
		return err
	}
	if err = s.Skip(14); err != nil { // X[14] reserved
		return err
	}
	return readReg(s, r)
}

// readReg reads the TZREG body shared by TZRULE and the standalone
// registry blob: three biases plus two SYSTEMTIME transitions.
func readReg(s *buf.Stream, r *Rule) error {
	var err error
	if r.Bias, err = s.ReadI32(); err != nil {
		return err
	}
	if r.StandardBias, err = s.ReadI32(); err != nil {
		return err
	}
	if r.DaylightBias, err = s.ReadI32(); err != nil {
		return err
	}
	if r.StandardDate, err = readSystemTime(s); err != nil {
		return err
	}
	r.DaylightDate, err = readSystemTime(s)
	return err
}

func readSystemTime(s *buf.Stream) (SystemTime, error) {
	var st SystemTime
	fields := []*uint16{
		&st.Year, &st.Month, &st.DayOfWeek, &st.Day,
		&st.Hour, &st.Minute, &st.Second, &st.Millis,
	}
	for _, f := range fields {
		v, err := s.ReadU16()
		if err != nil {
			return SystemTime{}, err
		}
		*f = v
	}
	return st, nil
}

// DecodeReg parses the legacy PidLidTimeZoneStruct blob: a bare TZREG
// with no version header and no key name.
func DecodeReg(b []byte) (*Rule, error) {
	s := buf.New(b)
	var r Rule
	if err := readReg(s, &r); err != nil {
		return nil, fmt.Errorf("tzdef: tzreg: %w", err)
	}
	return &r, nil
}
