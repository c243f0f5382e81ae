// Package verbs decodes the PidLidVerbStream blob carrying reply verbs
// and custom voting buttons.
//
// The stream has two passes over the same verb list: a legacy ASCII pass
// and an optional Unicode pass that re-states the display names. When
// the second pass is present it wins; otherwise the ASCII names stand.
package verbs

import (
	"fmt"

	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
)

const (
	streamVersion  = 0x0102
	streamVersion2 = 0x0104
)

// verbIDVote marks the verb records that represent voting buttons; the
// fixed reply/forward verbs carry other IDs.
const verbIDVote = 4

// Verb is one decoded verb record.
type Verb struct {
	VerbType     uint32
	DisplayName  string
	MsgClsName   string
	UseUSHeaders bool
	SendBehavior uint32
	ID           uint32
}

// Stream is a decoded verb stream.
type Stream struct {
	Verbs []Verb
}

// VotingOptions returns the display names of the voting-button verbs in
// stream order.
func (s *Stream) VotingOptions() []string {
	var out []string
	for _, v := range s.Verbs {
		if v.ID == verbIDVote {
			out = append(out, v.DisplayName)
		}
	}
	return out
}

// Decode parses a verb stream blob.
func Decode(b []byte) (*Stream, error) {
	s := buf.New(b)

	version, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if version != streamVersion {
		return nil, fmt.Errorf("verbs: version %04X: %w", version, format.ErrVersion)
	}

	count, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count) > s.Remaining()/verbMinSize {
		return nil, fmt.Errorf("verbs: %d verbs in %d bytes: %w", count, s.Remaining(), format.ErrSanityLimit)
	}

	out := &Stream{Verbs: make([]Verb, count)}
	for i := range out.Verbs {
		if err := readVerb(s, &out.Verbs[i]); err != nil {
			return nil, fmt.Errorf("verbs: verb %d: %w", i, err)
		}
	}

	// The Unicode pass is optional: some writers stop after the ASCII
	// records.
	if s.EOF() {
		return out, nil
	}
	version2, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if version2 != streamVersion2 {
		return nil, fmt.Errorf("verbs: version2 %04X: %w", version2, format.ErrVersion)
	}

	// Unicode pass: display names re-stated per verb, overwriting the
	// ASCII pass.
	for i := range out.Verbs {
		name, err := readWideName(s)
		if err != nil {
			return nil, fmt.Errorf("verbs: wide name %d: %w", i, err)
		}
		if _, err := readWideName(s); err != nil { // repeated copy
			return nil, fmt.Errorf("verbs: wide name repeat %d: %w", i, err)
		}
		out.Verbs[i].DisplayName = name
	}
	return out, nil
}

// verbMinSize is a pass-1 verb record with all four strings empty.
const verbMinSize = 4 + 4*1 + 7*4 + 1

func readVerb(s *buf.Stream, v *Verb) error {
	var err error
	if v.VerbType, err = s.ReadU32(); err != nil {
		return err
	}
	if v.DisplayName, err = readNarrowName(s); err != nil {
		return err
	}
	if v.MsgClsName, err = readNarrowName(s); err != nil {
		return err
	}
	if _, err = readNarrowName(s); err != nil { // internal string
		return err
	}
	if _, err = readNarrowName(s); err != nil { // display name repeat
		return err
	}
	if err = s.Skip(4); err != nil { // internal
		return err
	}
	if err = s.Skip(1); err != nil { // internal
		return err
	}
	us, err := s.ReadU32()
	if err != nil {
		return err
	}
	v.UseUSHeaders = us != 0
	if err = s.Skip(4); err != nil { // internal
		return err
	}
	if v.SendBehavior, err = s.ReadU32(); err != nil {
		return err
	}
	if err = s.Skip(4); err != nil { // internal
		return err
	}
	if v.ID, err = s.ReadU32(); err != nil {
		return err
	}
	return s.Skip(4) // internal
}

func readNarrowName(s *buf.Stream) (string, error) {
	n, err := s.ReadU8()
	if err != nil {
		return "", err
	}
	return s.ReadString(int(n), nil)
}

func readWideName(s *buf.Stream) (string, error) {
	n, err := s.ReadU8()
	if err != nil {
		return "", err
	}
	return s.ReadUTF16(int(n) * 2)
}
