package msg

import (
	"fmt"

	"github.com/msgtools/msgkit/cfb"
)

// EmbeddedRef is a lazy handle on an embedded-message attachment: the
// owning directory index plus the parent reader. Nothing is copied or
// re-encoded until Bytes or Message is called.
type EmbeddedRef struct {
	r     *cfb.Reader
	index int
	names nameTable
}

// Index returns the directory entry index of the embedded message's
// storage in the parent file.
func (e *EmbeddedRef) Index() int { return e.index }

// Bytes re-serializes the embedded message's subtree as a standalone
// .msg file. The nameid storage is not copied down: embedded messages
// share the top-level alias table, so the produced file resolves named
// properties only through the static tables.
func (e *EmbeddedRef) Bytes() ([]byte, error) {
	dir := e.r.Folder(e.index)
	if dir == nil {
		return nil, fmt.Errorf("embedded message: entry %d is not a storage", e.index)
	}

	entries := []cfb.WriterEntry{{Type: cfb.Root, Name: "Root Entry"}}
	var walk func(parent int, f *cfb.Folder)
	walk = func(parent int, f *cfb.Folder) {
		for _, sub := range f.SubFolders() {
			i := len(entries)
			entries = append(entries, cfb.WriterEntry{Type: cfb.Storage, Name: sub.Name()})
			entries[parent].Children = append(entries[parent].Children, i)
			walk(i, sub)
		}
		for _, ref := range f.Streams() {
			i := len(entries)
			entries = append(entries, cfb.WriterEntry{
				Type:  cfb.Stream,
				Name:  ref.Name(),
				Size:  ref.Size(),
				Bytes: ref.Bytes,
			})
			entries[parent].Children = append(entries[parent].Children, i)
		}
	}
	walk(0, dir)
	return cfb.Write(entries)
}

// Message decodes the embedded message in place, without the
// re-serialization round-trip.
func (e *EmbeddedRef) Message(opts *Options) (*Message, error) {
	dir := e.r.Folder(e.index)
	if dir == nil {
		return nil, fmt.Errorf("embedded message: entry %d is not a storage", e.index)
	}
	if opts == nil {
		opts = &Options{}
	}
	d := &decoder{r: e.r, names: e.names, opts: opts}
	return d.message(dir, packedNestedHeader)
}
