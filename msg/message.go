// Package msg decodes Outlook .msg files: a compound-file container of
// MAPI property bags for the message itself, its recipients, and its
// attachments.
package msg

import "time"

// Message is a decoded property bag plus its recipient and attachment
// sub-bags. Props values are the decoded Go representations: string,
// []byte, int32, int64, bool, float32/64, time.Time, or one of the
// satellite decoder results.
type Message struct {
	Props       map[string]any
	Recipients  []*Recipient
	Attachments []*Attachment

	// Warnings records per-field decode problems that did not abort
	// the message, such as a recurrence blob dropped on a structural
	// error.
	Warnings []string
}

// Recipient is one __recip_version1.0_#NNNNNNNN bag. Kind is the
// decoded recipient type: "to", "cc", or "bcc".
type Recipient struct {
	Kind  string
	Props map[string]any
}

// Attachment is one __attach_version1.0_#NNNNNNNN bag. For embedded
// message attachments, Embedded references the nested bag without
// materializing it.
type Attachment struct {
	Props    map[string]any
	Embedded *EmbeddedRef
}

// Class returns the message class, e.g. "IPM.Note".
func (m *Message) Class() string {
	s, _ := m.Props["messageClass"].(string)
	return s
}

// Subject returns the decoded subject, or "".
func (m *Message) Subject() string {
	s, _ := m.Props["subject"].(string)
	return s
}

// SenderName returns the decoded sender display name, or "".
func (m *Message) SenderName() string {
	s, _ := m.Props["senderName"].(string)
	return s
}

// Body returns the plain-text body, or "".
func (m *Message) Body() string {
	s, _ := m.Props["body"].(string)
	return s
}

// BodyHTML returns the HTML body, or "".
func (m *Message) BodyHTML() string {
	s, _ := m.Props["bodyHtml"].(string)
	return s
}

// Time returns a FILETIME-typed property as time.Time.
func (m *Message) Time(key string) (time.Time, bool) {
	t, ok := m.Props[key].(time.Time)
	return t, ok
}

// Filename returns the best available attachment filename.
func (a *Attachment) Filename() string {
	for _, key := range []string{"attachLongFilename", "attachFilename", "displayName"} {
		if s, _ := a.Props[key].(string); s != "" {
			return s
		}
	}
	return ""
}

// Data returns the attachment payload bytes, nil for embedded-message
// attachments.
func (a *Attachment) Data() []byte {
	b, _ := a.Props["attachData"].([]byte)
	return b
}
