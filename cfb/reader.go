package cfb

import (
	"errors"
	"fmt"
	"slices"

	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
)

// ErrNotCompound reports that a buffer is not a compound file at all.
// It is the "unsupported file type" arm of the error taxonomy: callers
// probe with IsCompound or match this error to fall back to other
// formats, and it is never produced for structural corruption.
var ErrNotCompound = errors.New("cfb: not a compound file")

// EntryType classifies a directory entry.
type EntryType uint8

const (
	Empty   EntryType = EntryType(format.ObjEmpty)
	Storage EntryType = EntryType(format.ObjStorage)
	Stream  EntryType = EntryType(format.ObjStream)
	Root    EntryType = EntryType(format.ObjRoot)
)

// EntryInfo describes one directory entry for callers that need the raw
// tree, such as the embedded-message re-serializer.
type EntryInfo struct {
	Name     string
	Type     EntryType
	Size     uint64
	Children []int // storage children, sorted by the format comparator
}

// Reader is a parsed compound file. All allocation tables are fields of
// the handle, never process-wide state, so distinct buffers parse safely
// in parallel.
type Reader struct {
	data       []byte
	hdr        format.Header
	sectorSize int
	fat        []uint32
	minifat    []uint32
	entries    []format.DirEntry
	children   [][]int
	miniStream []byte // materialized root stream backing the mini sectors
}

// IsCompound reports whether b carries the compound file magic. It never
// fails on short or foreign input.
func IsCompound(b []byte) bool {
	return format.HasSignature(b)
}

// New parses a compound file from b. The Reader aliases b; the caller
// must not mutate the buffer while the Reader is in use.
func New(b []byte) (*Reader, error) {
	if !IsCompound(b) {
		return nil, ErrNotCompound
	}
	hdr, err := format.ParseHeader(b)
	if err != nil {
		return nil, err
	}
	r := &Reader{data: b, hdr: hdr, sectorSize: hdr.SectorSize()}

	if err := r.loadFAT(); err != nil {
		return nil, fmt.Errorf("cfb: fat: %w", err)
	}
	if err := r.loadMiniFAT(); err != nil {
		return nil, fmt.Errorf("cfb: minifat: %w", err)
	}
	if err := r.loadDirectory(); err != nil {
		return nil, fmt.Errorf("cfb: directory: %w", err)
	}
	if err := r.buildTree(); err != nil {
		return nil, fmt.Errorf("cfb: directory tree: %w", err)
	}
	// The root entry's own stream is the concatenated mini-stream
	// payload; every mini-sector read resolves through it.
	root := r.entries[0]
	ms, err := r.fatChainBytes(root.StartSector, r.entrySize(root))
	if err != nil {
		return nil, fmt.Errorf("cfb: mini stream: %w", err)
	}
	r.miniStream = ms
	return r, nil
}

// entrySize masks the size field down to 32 bits for version-3 files,
// where the high half of the on-disk field is not meaningful.
func (r *Reader) entrySize(e format.DirEntry) uint64 {
	if r.hdr.SectorShift == format.SectorShiftV3 {
		return e.Size & 0xFFFFFFFF
	}
	return e.Size
}

func (r *Reader) sectorOffset(sn uint32) int {
	return (int(sn) + 1) * r.sectorSize
}

// readSector returns the payload of big sector sn.
func (r *Reader) readSector(sn uint32) ([]byte, error) {
	if sn > format.MaxRegSect {
		return nil, fmt.Errorf("sector 0x%08X is a sentinel", sn)
	}
	b, ok := buf.Slice(r.data, r.sectorOffset(sn), r.sectorSize)
	if !ok {
		return nil, fmt.Errorf("sector %d: %w", sn, format.ErrTruncated)
	}
	return b, nil
}

// loadFAT assembles the FAT from the header's 109 inline pointers plus
// the DIFAT sector chain, if more than 109 FAT sectors exist. Each DIFAT
// sector holds sector pointers plus one forward link in its last slot.
func (r *Reader) loadFAT() error {
	locs := make([]uint32, 0, format.HeaderDIFATSlots)
	for _, sn := range r.hdr.DIFAT {
		if sn <= format.MaxRegSect {
			locs = append(locs, sn)
		}
	}
	perSector := r.sectorSize / 4
	next := r.hdr.FirstDIFAT
	for i := uint32(0); i < r.hdr.DIFATSectors; i++ {
		sect, err := r.readSector(next)
		if err != nil {
			return fmt.Errorf("difat sector %d: %w", i, err)
		}
		for j := 0; j < perSector-1; j++ {
			if sn := buf.U32LE(sect[j*4:]); sn <= format.MaxRegSect {
				locs = append(locs, sn)
			}
		}
		next = buf.U32LE(sect[(perSector-1)*4:])
		if next > format.MaxRegSect {
			break
		}
	}
	if len(locs) > format.MaxSectorCount/perSector+1 {
		return format.ErrSanityLimit
	}
	r.fat = make([]uint32, 0, len(locs)*perSector)
	for _, sn := range locs {
		sect, err := r.readSector(sn)
		if err != nil {
			return fmt.Errorf("fat sector %d: %w", sn, err)
		}
		for j := 0; j < perSector; j++ {
			r.fat = append(r.fat, buf.U32LE(sect[j*4:]))
		}
	}
	return nil
}

// loadMiniFAT reads the MiniFAT, itself a regular FAT-chained stream.
func (r *Reader) loadMiniFAT() error {
	if r.hdr.MiniFATSectors == 0 || r.hdr.FirstMiniFAT > format.MaxRegSect {
		return nil
	}
	raw, err := r.fatChainBytes(r.hdr.FirstMiniFAT, uint64(r.hdr.MiniFATSectors)*uint64(r.sectorSize))
	if err != nil {
		return err
	}
	r.minifat = make([]uint32, 0, len(raw)/4)
	for off := 0; off+4 <= len(raw); off += 4 {
		r.minifat = append(r.minifat, buf.U32LE(raw[off:]))
	}
	return nil
}

// loadDirectory reads the directory stream into a flat entry array.
func (r *Reader) loadDirectory() error {
	// The v3 header does not carry a directory sector count; walk the
	// chain to its terminator.
	raw, err := r.fatChainAll(r.hdr.FirstDirSector)
	if err != nil {
		return err
	}
	n := len(raw) / format.DirEntrySize
	if n == 0 {
		return fmt.Errorf("empty directory stream: %w", format.ErrTruncated)
	}
	if n > format.MaxDirEntries {
		return format.ErrSanityLimit
	}
	r.entries = make([]format.DirEntry, 0, n)
	for i := 0; i < n; i++ {
		e, err := format.DecodeDirEntry(raw[i*format.DirEntrySize:])
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		r.entries = append(r.entries, e)
	}
	if r.entries[0].Type != format.ObjRoot {
		return fmt.Errorf("entry 0 is type %d, not root: %w", r.entries[0].Type, format.ErrUnsupported)
	}
	return nil
}

// buildTree materializes each storage's child list. The sibling "tree"
// is walked generally (queue of left/right links) because external
// producers may balance it; our own writer only ever emits linked lists.
func (r *Reader) buildTree() error {
	r.children = make([][]int, len(r.entries))
	for i, e := range r.entries {
		if e.Type != format.ObjStorage && e.Type != format.ObjRoot {
			continue
		}
		kids, err := r.collectChildren(i)
		if err != nil {
			return fmt.Errorf("storage %d (%q): %w", i, e.Name, err)
		}
		r.children[i] = kids
	}
	return nil
}

func (r *Reader) collectChildren(storage int) ([]int, error) {
	var out []int
	seen := make(map[uint32]bool)
	queue := []uint32{r.entries[storage].Child}
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if id > format.MaxRegSID {
			continue
		}
		if int(id) >= len(r.entries) {
			return nil, fmt.Errorf("child id %d out of range", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("sibling cycle at entry %d", id)
		}
		seen[id] = true
		e := r.entries[id]
		if e.Type != format.ObjEmpty {
			out = append(out, int(id))
		}
		queue = append(queue, e.Left, e.Right)
	}
	slices.SortFunc(out, func(a, b int) int {
		return format.CompareNames(r.entries[a].Name, r.entries[b].Name)
	})
	return out, nil
}

// fatChainAll concatenates every sector of a FAT chain until its
// terminator, for streams whose length is only implied by the chain.
func (r *Reader) fatChainAll(start uint32) ([]byte, error) {
	var out []byte
	sn := start
	for steps := 0; sn != format.EndOfChain; steps++ {
		if sn > format.MaxRegSect {
			break
		}
		if steps > len(r.fat) {
			return nil, fmt.Errorf("fat chain from %d exceeds table size (cycle?)", start)
		}
		sect, err := r.readSector(sn)
		if err != nil {
			return nil, err
		}
		out = append(out, sect...)
		if int(sn) >= len(r.fat) {
			return nil, fmt.Errorf("sector %d beyond fat table: %w", sn, format.ErrTruncated)
		}
		sn = r.fat[sn]
	}
	return out, nil
}

// fatChainBytes concatenates the sectors of a FAT chain starting at
// start, truncated to size bytes.
func (r *Reader) fatChainBytes(start uint32, size uint64) ([]byte, error) {
	if size == 0 || start > format.MaxRegSect {
		return nil, nil
	}
	out := make([]byte, 0, size)
	sn := start
	for steps := 0; sn != format.EndOfChain; steps++ {
		if steps > len(r.fat) {
			return nil, fmt.Errorf("fat chain from %d exceeds table size (cycle?)", start)
		}
		sect, err := r.readSector(sn)
		if err != nil {
			return nil, err
		}
		out = append(out, sect...)
		if uint64(len(out)) >= size {
			return out[:size], nil
		}
		if int(sn) >= len(r.fat) {
			return nil, fmt.Errorf("sector %d beyond fat table: %w", sn, format.ErrTruncated)
		}
		sn = r.fat[sn]
	}
	if uint64(len(out)) < size {
		return nil, fmt.Errorf("fat chain from %d: declared %d bytes, chained %d: %w",
			start, size, len(out), format.ErrTruncated)
	}
	return out[:size], nil
}

// miniChainBytes resolves a MiniFAT chain over 64-byte units backed by
// the materialized root stream (double indirection).
func (r *Reader) miniChainBytes(start uint32, size uint64) ([]byte, error) {
	if size == 0 || start > format.MaxRegSect {
		return nil, nil
	}
	out := make([]byte, 0, size)
	sn := start
	for steps := 0; sn != format.EndOfChain; steps++ {
		if steps > len(r.minifat) {
			return nil, fmt.Errorf("minifat chain from %d exceeds table size (cycle?)", start)
		}
		unit, ok := buf.Slice(r.miniStream, int(sn)*format.MiniSectorSize, format.MiniSectorSize)
		if !ok {
			return nil, fmt.Errorf("mini sector %d: %w", sn, format.ErrTruncated)
		}
		out = append(out, unit...)
		if uint64(len(out)) >= size {
			return out[:size], nil
		}
		if int(sn) >= len(r.minifat) {
			return nil, fmt.Errorf("mini sector %d beyond minifat table: %w", sn, format.ErrTruncated)
		}
		sn = r.minifat[sn]
	}
	if uint64(len(out)) < size {
		return nil, fmt.Errorf("minifat chain from %d: declared %d bytes, chained %d: %w",
			start, size, len(out), format.ErrTruncated)
	}
	return out[:size], nil
}

// EntryCount returns the number of directory entries, including frees.
func (r *Reader) EntryCount() int { return len(r.entries) }

// Entry describes directory entry i.
func (r *Reader) Entry(i int) (EntryInfo, error) {
	if i < 0 || i >= len(r.entries) {
		return EntryInfo{}, fmt.Errorf("cfb: entry %d out of range [0,%d): %w", i, len(r.entries), format.ErrNotFound)
	}
	e := r.entries[i]
	return EntryInfo{
		Name:     e.Name,
		Type:     EntryType(e.Type),
		Size:     r.entrySize(e),
		Children: slices.Clone(r.children[i]),
	}, nil
}

// ReadStream returns the payload bytes of stream entry i. Streams
// shorter than the 4096-byte cutoff resolve through the MiniFAT; longer
// ones resolve directly through the FAT. The root entry resolves to the
// raw mini-stream payload.
func (r *Reader) ReadStream(i int) ([]byte, error) {
	if i < 0 || i >= len(r.entries) {
		return nil, fmt.Errorf("cfb: stream %d out of range [0,%d): %w", i, len(r.entries), format.ErrNotFound)
	}
	e := r.entries[i]
	size := r.entrySize(e)
	if size == 0 {
		return []byte{}, nil
	}
	if e.Type == format.ObjRoot {
		return slices.Clone(r.miniStream), nil
	}
	if e.Type != format.ObjStream {
		return nil, fmt.Errorf("cfb: entry %d (%q) is not a stream", i, e.Name)
	}
	if size < format.MiniStreamCutoff {
		return r.miniChainBytes(e.StartSector, size)
	}
	return r.fatChainBytes(e.StartSector, size)
}

// SectorSize returns the big-sector size of the parsed file.
func (r *Reader) SectorSize() int { return r.sectorSize }
