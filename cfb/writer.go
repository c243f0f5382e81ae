package cfb

import (
	"errors"
	"fmt"
	"slices"

	"github.com/msgtools/msgkit/internal/buf"
	"github.com/msgtools/msgkit/internal/format"
)

// ErrBadEntryList reports a writer input that violates the entry-list
// contract. This is a fail-fast programming error, not a recoverable
// condition: the writer refuses to guess at a malformed tree.
var ErrBadEntryList = errors.New("cfb: invalid writer entry list")

// WriterEntry is one node of the flat entry list consumed by Write.
// Entry 0 must be the Root. Storage and Root entries list the indices of
// their children; Stream entries carry a byte length and a lazy payload
// provider, called once during Write.
type WriterEntry struct {
	Type     EntryType
	Name     string
	Children []int
	Size     uint64
	Bytes    func() ([]byte, error)
}

const (
	v3SectorSize  = 512
	fatPerSector  = v3SectorSize / 4          // 128
	difatPerSect  = fatPerSector - 1          // 127 pointers + 1 forward link
	dirPerSector  = v3SectorSize / format.DirEntrySize
	miniPerSector = v3SectorSize / format.MiniSectorSize
)

// Write synthesizes a version-3 (512-byte sector) compound file from
// entries. Parsing the result reproduces the identical logical tree and
// byte-identical stream payloads.
func Write(entries []WriterEntry) ([]byte, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}

	// Fetch payloads up front; every allocation below depends on exact
	// sizes.
	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		if e.Type != Stream || e.Size == 0 {
			continue
		}
		if e.Bytes == nil {
			return nil, fmt.Errorf("%w: entry %d (%q) has size %d but no provider", ErrBadEntryList, i, e.Name, e.Size)
		}
		b, err := e.Bytes()
		if err != nil {
			return nil, fmt.Errorf("cfb: entry %d (%q) provider: %w", i, e.Name, err)
		}
		if uint64(len(b)) != e.Size {
			return nil, fmt.Errorf("%w: entry %d (%q) declared %d bytes, provider returned %d",
				ErrBadEntryList, i, e.Name, e.Size, len(b))
		}
		payloads[i] = b
	}

	// Sibling layout: children sorted by the format comparator and
	// encoded as a linked list child -> right -> right. A from-scratch
	// writer never needs to balance the tree; readers handle both.
	type links struct{ left, right, child uint32 }
	lk := make([]links, len(entries))
	for i := range lk {
		lk[i] = links{format.NoStream, format.NoStream, format.NoStream}
	}
	for i, e := range entries {
		if e.Type != Storage && e.Type != Root {
			continue
		}
		kids := slices.Clone(e.Children)
		slices.SortFunc(kids, func(a, b int) int {
			return format.CompareNames(entries[a].Name, entries[b].Name)
		})
		for j := 0; j < len(kids)-1; j++ {
			lk[kids[j]].right = uint32(kids[j+1])
		}
		if len(kids) > 0 {
			lk[i].child = uint32(kids[0])
		}
	}

	// Mini-stream allocation: 64-byte units for every stream below the
	// cutoff, packed in entry order.
	miniStart := make([]uint32, len(entries))
	miniUnits := 0
	for i, e := range entries {
		miniStart[i] = format.EndOfChain
		if e.Type == Stream && e.Size > 0 && e.Size < format.MiniStreamCutoff {
			miniStart[i] = uint32(miniUnits)
			miniUnits += int(ceilDiv(e.Size, format.MiniSectorSize))
		}
	}

	dirSectors := ceilDivInt(len(entries), dirPerSector)
	minifatSectors := ceilDivInt(miniUnits*4, v3SectorSize)
	miniStreamSize := uint64(miniUnits) * format.MiniSectorSize
	miniStreamSectors := ceilDivInt(int(miniStreamSize), v3SectorSize)

	bigSectors := make([]int, len(entries))
	totalBig := 0
	for i, e := range entries {
		if e.Type == Stream && e.Size >= format.MiniStreamCutoff {
			bigSectors[i] = int(ceilDiv(e.Size, v3SectorSize))
			totalBig += bigSectors[i]
		}
	}

	// The FAT must cover itself and the DIFAT, so its size is
	// self-referential (the spec's closed form is
	// ceil(4*(n + n/128 + n/(128*109)) / sectorSize)); a short
	// fix-point iteration lands on the same answer exactly.
	nonFAT := dirSectors + minifatSectors + miniStreamSectors + totalBig
	fatSectors, difatSectors := 0, 0
	for {
		difatSectors = 0
		if fatSectors > format.HeaderDIFATSlots {
			difatSectors = ceilDivInt(fatSectors-format.HeaderDIFATSlots, difatPerSect)
		}
		next := ceilDivInt(nonFAT+fatSectors+difatSectors, fatPerSector)
		if next == fatSectors {
			break
		}
		fatSectors = next
	}

	// Sector layout: directory, MiniFAT table, mini stream, big stream
	// payloads in entry order, FAT table, DIFAT table.
	dirStart := uint32(0)
	minifatStart := dirStart + uint32(dirSectors)
	miniStreamStart := minifatStart + uint32(minifatSectors)
	bigBase := miniStreamStart + uint32(miniStreamSectors)
	bigStart := make([]uint32, len(entries))
	next := bigBase
	for i := range entries {
		if bigSectors[i] > 0 {
			bigStart[i] = next
			next += uint32(bigSectors[i])
		}
	}
	fatStart := next
	difatStart := fatStart + uint32(fatSectors)
	totalSectors := int(difatStart) + difatSectors

	// FAT: sequential chains, table self-markers, free tail.
	fat := make([]uint32, fatSectors*fatPerSector)
	for i := range fat {
		fat[i] = format.FreeSect
	}
	chain := func(start uint32, n int) {
		for j := 0; j < n; j++ {
			if j == n-1 {
				fat[int(start)+j] = format.EndOfChain
			} else {
				fat[int(start)+j] = start + uint32(j) + 1
			}
		}
	}
	chain(dirStart, dirSectors)
	if minifatSectors > 0 {
		chain(minifatStart, minifatSectors)
	}
	if miniStreamSectors > 0 {
		chain(miniStreamStart, miniStreamSectors)
	}
	for i := range entries {
		if bigSectors[i] > 0 {
			chain(bigStart[i], bigSectors[i])
		}
	}
	for j := 0; j < fatSectors; j++ {
		fat[int(fatStart)+j] = format.FATSect
	}
	for j := 0; j < difatSectors; j++ {
		fat[int(difatStart)+j] = format.DIFATSect
	}

	// MiniFAT: sequential chain per small stream.
	minifat := make([]uint32, minifatSectors*fatPerSector)
	for i := range minifat {
		minifat[i] = format.FreeSect
	}
	for i, e := range entries {
		if miniStart[i] == format.EndOfChain || e.Size == 0 {
			continue
		}
		units := int(ceilDiv(e.Size, format.MiniSectorSize))
		for j := 0; j < units; j++ {
			if j == units-1 {
				minifat[int(miniStart[i])+j] = format.EndOfChain
			} else {
				minifat[int(miniStart[i])+j] = miniStart[i] + uint32(j) + 1
			}
		}
	}

	hdr := format.Header{
		MinorVersion:   0x003E,
		MajorVersion:   3,
		SectorShift:    format.SectorShiftV3,
		FATSectors:     uint32(fatSectors),
		FirstDirSector: dirStart,
		FirstMiniFAT:   format.EndOfChain,
		FirstDIFAT:     format.EndOfChain,
		MiniFATSectors: uint32(minifatSectors),
		DIFATSectors:   uint32(difatSectors),
	}
	if minifatSectors > 0 {
		hdr.FirstMiniFAT = minifatStart
	}
	if difatSectors > 0 {
		hdr.FirstDIFAT = difatStart
	}
	for i := 0; i < format.HeaderDIFATSlots; i++ {
		if i < fatSectors {
			hdr.DIFAT[i] = fatStart + uint32(i)
		} else {
			hdr.DIFAT[i] = format.FreeSect
		}
	}

	out := buf.NewWritable()
	if err := out.WriteBytes(format.EncodeHeader(hdr)); err != nil {
		return nil, err
	}

	// Directory sectors.
	rec := make([]byte, format.DirEntrySize)
	for i, e := range entries {
		de := format.DirEntry{
			Name:  e.Name,
			Type:  uint8(e.Type),
			Color: format.ColorBlack,
			Left:  lk[i].left,
			Right: lk[i].right,
			Child: lk[i].child,
		}
		switch {
		case e.Type == Root:
			de.Size = miniStreamSize
			de.StartSector = format.EndOfChain
			if miniStreamSectors > 0 {
				de.StartSector = miniStreamStart
			}
		case e.Type == Stream && e.Size == 0:
			de.StartSector = format.EndOfChain
		case e.Type == Stream && e.Size < format.MiniStreamCutoff:
			de.StartSector = miniStart[i]
			de.Size = e.Size
		case e.Type == Stream:
			de.StartSector = bigStart[i]
			de.Size = e.Size
		}
		if err := format.EncodeDirEntry(de, rec); err != nil {
			return nil, fmt.Errorf("cfb: entry %d: %w", i, err)
		}
		if err := out.WriteBytes(rec); err != nil {
			return nil, err
		}
	}
	for i := len(entries); i < dirSectors*dirPerSector; i++ {
		format.EncodeFreeDirEntry(rec)
		if err := out.WriteBytes(rec); err != nil {
			return nil, err
		}
	}

	// MiniFAT sectors.
	for _, v := range minifat {
		if err := out.WriteU32(v); err != nil {
			return nil, err
		}
	}

	// Mini stream: each small payload padded to a 64-byte boundary,
	// the whole padded to a sector boundary.
	for i, e := range entries {
		if miniStart[i] == format.EndOfChain {
			continue
		}
		if err := out.WriteBytes(payloads[i]); err != nil {
			return nil, err
		}
		if pad := padTo(int(e.Size), format.MiniSectorSize); pad > 0 {
			if err := out.WriteZero(pad); err != nil {
				return nil, err
			}
		}
	}
	if pad := padTo(int(miniStreamSize), v3SectorSize); pad > 0 {
		if err := out.WriteZero(pad); err != nil {
			return nil, err
		}
	}

	// Big stream payloads.
	for i := range entries {
		if bigSectors[i] == 0 {
			continue
		}
		if err := out.WriteBytes(payloads[i]); err != nil {
			return nil, err
		}
		if pad := padTo(len(payloads[i]), v3SectorSize); pad > 0 {
			if err := out.WriteZero(pad); err != nil {
				return nil, err
			}
		}
	}

	// FAT sectors.
	for _, v := range fat {
		if err := out.WriteU32(v); err != nil {
			return nil, err
		}
	}

	// DIFAT sectors: 127 FAT pointers plus one forward link each.
	for j := 0; j < difatSectors; j++ {
		for k := 0; k < difatPerSect; k++ {
			idx := format.HeaderDIFATSlots + j*difatPerSect + k
			v := format.FreeSect
			if idx < fatSectors {
				v = fatStart + uint32(idx)
			}
			if err := out.WriteU32(v); err != nil {
				return nil, err
			}
		}
		link := format.EndOfChain
		if j < difatSectors-1 {
			link = difatStart + uint32(j) + 1
		}
		if err := out.WriteU32(link); err != nil {
			return nil, err
		}
	}

	if got, want := out.Len(), format.HeaderSize+totalSectors*v3SectorSize; got != want {
		return nil, fmt.Errorf("cfb: serialized %d bytes, planned %d", got, want)
	}
	return out.Bytes(), nil
}

// validateEntries enforces the entry-list contract before any
// allocation: exactly one Root at index 0, every child index in range
// and claimed by exactly one parent, no children on streams, and every
// entry reachable from the root.
func validateEntries(entries []WriterEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty", ErrBadEntryList)
	}
	if entries[0].Type != Root {
		return fmt.Errorf("%w: entry 0 is not the root", ErrBadEntryList)
	}
	parent := make([]int, len(entries))
	for i := range parent {
		parent[i] = -1
	}
	for i, e := range entries {
		switch e.Type {
		case Root:
			if i != 0 {
				return fmt.Errorf("%w: root at index %d", ErrBadEntryList, i)
			}
		case Storage:
		case Stream:
			if len(e.Children) > 0 {
				return fmt.Errorf("%w: stream entry %d (%q) has children", ErrBadEntryList, i, e.Name)
			}
		default:
			return fmt.Errorf("%w: entry %d has type %d", ErrBadEntryList, i, e.Type)
		}
		for _, c := range e.Children {
			if c <= 0 || c >= len(entries) {
				return fmt.Errorf("%w: entry %d child %d out of range", ErrBadEntryList, i, c)
			}
			if parent[c] != -1 {
				return fmt.Errorf("%w: entry %d claimed by parents %d and %d", ErrBadEntryList, c, parent[c], i)
			}
			parent[c] = i
		}
	}

	// A single claimed parent is not enough: storages can still claim
	// each other in a cycle detached from the root, or sit unclaimed.
	seen := make([]bool, len(entries))
	seen[0] = true
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range entries[i].Children {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("%w: entry %d (%q) unreachable from the root", ErrBadEntryList, i, entries[i].Name)
		}
	}
	return nil
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func ceilDivInt(a, b int) int {
	return (a + b - 1) / b
}

func padTo(n, align int) int {
	if rem := n % align; rem != 0 {
		return align - rem
	}
	return 0
}
