package cfb

// Folder is a navigation handle over a Root or Storage entry.
type Folder struct {
	r     *Reader
	index int
}

// RootFolder returns the root storage of the parsed file.
func (r *Reader) RootFolder() *Folder {
	return &Folder{r: r, index: 0}
}

// Folder returns a navigation handle for storage entry i, or nil when i
// is not a storage.
func (r *Reader) Folder(i int) *Folder {
	if i < 0 || i >= len(r.entries) {
		return nil
	}
	if t := r.entries[i].Type; t != uint8(Storage) && t != uint8(Root) {
		return nil
	}
	return &Folder{r: r, index: i}
}

// Index returns the directory entry index of the folder.
func (f *Folder) Index() int { return f.index }

// Name returns the folder's directory entry name.
func (f *Folder) Name() string { return f.r.entries[f.index].Name }

// SubFolders lists the storage children in comparator order.
func (f *Folder) SubFolders() []*Folder {
	var out []*Folder
	for _, c := range f.r.children[f.index] {
		if f.r.entries[c].Type == uint8(Storage) {
			out = append(out, &Folder{r: f.r, index: c})
		}
	}
	return out
}

// Streams lists the stream children as lazy descriptors; no payload is
// read until Bytes is called.
func (f *Folder) Streams() []StreamRef {
	var out []StreamRef
	for _, c := range f.r.children[f.index] {
		if f.r.entries[c].Type == uint8(Stream) {
			out = append(out, StreamRef{r: f.r, index: c})
		}
	}
	return out
}

// Stream looks up a stream child by exact name.
func (f *Folder) Stream(name string) (StreamRef, bool) {
	for _, c := range f.r.children[f.index] {
		e := f.r.entries[c]
		if e.Type == uint8(Stream) && e.Name == name {
			return StreamRef{r: f.r, index: c}, true
		}
	}
	return StreamRef{}, false
}

// SubFolder looks up a storage child by exact name.
func (f *Folder) SubFolder(name string) (*Folder, bool) {
	for _, c := range f.r.children[f.index] {
		e := f.r.entries[c]
		if e.Type == uint8(Storage) && e.Name == name {
			return &Folder{r: f.r, index: c}, true
		}
	}
	return nil, false
}

// StreamRef is a lazy stream descriptor: name and length are available
// without touching the payload.
type StreamRef struct {
	r     *Reader
	index int
}

// Index returns the directory entry index of the stream.
func (s StreamRef) Index() int { return s.index }

// Name returns the stream's directory entry name.
func (s StreamRef) Name() string { return s.r.entries[s.index].Name }

// Size returns the declared payload length.
func (s StreamRef) Size() uint64 { return s.r.entrySize(s.r.entries[s.index]) }

// Bytes reads the stream payload.
func (s StreamRef) Bytes() ([]byte, error) { return s.r.ReadStream(s.index) }
