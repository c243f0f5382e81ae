// Package format houses low-level decoders for the Compound File Binary
// Format (CFBF), the structured-storage container behind Outlook .msg
// files. The goal is to keep the parsing focused, allocation-free where
// possible, and independent from the public API so higher-level packages
// can orchestrate the data in a more ergonomic form.
package format

// Signature is the eight-byte magic at the start of every compound file.
var Signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	// HeaderSize is the size of the compound file header. The header
	// occupies the first sector (and the first 512 bytes are the header
	// proper even for 4096-byte-sector files).
	HeaderSize = 512

	// DirEntrySize is the size of one directory record.
	DirEntrySize = 128

	// MiniSectorSize is the size of a mini-stream sector.
	MiniSectorSize = 64

	// MiniStreamCutoff is the stream length below which payloads are
	// stored in the mini stream rather than in big sectors.
	MiniStreamCutoff = 4096

	// SectorShiftV3 and SectorShiftV4 are the legal values of the
	// sector-shift marker at header offset 30: 2^9 = 512-byte sectors
	// for major version 3, 2^12 = 4096-byte for version 4.
	SectorShiftV3 = 0x0009
	SectorShiftV4 = 0x000C

	// MiniSectorShift is the only legal mini-sector shift (2^6 = 64).
	MiniSectorShift = 0x0006

	// ByteOrderMarker is the mandatory little-endian marker.
	ByteOrderMarker = 0xFFFE

	// HeaderDIFATSlots is the number of FAT sector pointers carried
	// inline in the header before DIFAT sectors are needed.
	HeaderDIFATSlots = 109
)

// Sector sentinels used in the FAT, MiniFAT and DIFAT.
const (
	MaxRegSect uint32 = 0xFFFFFFFA // maximum regular sector number
	DIFATSect  uint32 = 0xFFFFFFFC // sector holds DIFAT entries
	FATSect    uint32 = 0xFFFFFFFD // sector holds FAT entries
	EndOfChain uint32 = 0xFFFFFFFE // terminates a sector chain
	FreeSect   uint32 = 0xFFFFFFFF // unallocated sector
)

// Directory stream sentinels.
const (
	MaxRegSID uint32 = 0xFFFFFFFA // maximum regular stream ID
	NoStream  uint32 = 0xFFFFFFFF // null sibling/child pointer
)

// Directory entry object types.
const (
	ObjEmpty   uint8 = 0
	ObjStorage uint8 = 1
	ObjStream  uint8 = 2
	ObjRoot    uint8 = 5
)

// Directory entry red/black colors. A from-scratch writer emits all-black
// sibling lists; readers must accept either.
const (
	ColorRed   uint8 = 0
	ColorBlack uint8 = 1
)

// Header field offsets.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------
//	 0x00    8    Signature D0 CF 11 E0 A1 B1 1A E1
//	 0x08   16    CLSID (must be zero)
//	 0x18    2    Minor version
//	 0x1A    2    Major version (3 or 4)
//	 0x1C    2    Byte order marker (0xFFFE)
//	 0x1E    2    Sector shift (0x0009 or 0x000C)
//	 0x20    2    Mini sector shift (0x0006)
//	 0x22    6    Reserved
//	 0x28    4    Directory sector count (v4 only, 0 for v3)
//	 0x2C    4    FAT sector count
//	 0x30    4    First directory sector
//	 0x34    4    Transaction signature (ignored)
//	 0x38    4    Mini stream cutoff (4096)
//	 0x3C    4    First MiniFAT sector
//	 0x40    4    MiniFAT sector count
//	 0x44    4    First DIFAT sector
//	 0x48    4    DIFAT sector count
//	 0x4C  109*4  Inline DIFAT (FAT sector pointers)
const (
	HdrSignatureOffset    = 0x00
	HdrCLSIDOffset        = 0x08
	HdrMinorVersionOffset = 0x18
	HdrMajorVersionOffset = 0x1A
	HdrByteOrderOffset    = 0x1C
	HdrSectorShiftOffset  = 0x1E
	HdrMiniShiftOffset    = 0x20
	HdrDirSectorsOffset   = 0x28
	HdrFATSectorsOffset   = 0x2C
	HdrFirstDirOffset     = 0x30
	HdrTransactionOffset  = 0x34
	HdrMiniCutoffOffset   = 0x38
	HdrFirstMiniFATOffset = 0x3C
	HdrMiniFATCountOffset = 0x40
	HdrFirstDIFATOffset   = 0x44
	HdrDIFATCountOffset   = 0x48
	HdrDIFATOffset        = 0x4C
)

// Directory record field offsets.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------
//	 0x00   64    Name, UTF-16LE, NUL-terminated
//	 0x40    2    Name length in bytes including the terminator
//	 0x42    1    Object type
//	 0x43    1    Color (red/black)
//	 0x44    4    Left sibling stream ID
//	 0x48    4    Right sibling stream ID
//	 0x4C    4    Child stream ID
//	 0x50   16    CLSID
//	 0x60    4    State bits
//	 0x64    8    Creation time (FILETIME)
//	 0x6C    8    Modification time (FILETIME)
//	 0x74    4    Starting sector
//	 0x78    8    Stream size (low 32 bits valid for v3)
const (
	DirNameOffset     = 0x00
	DirNameLenOffset  = 0x40
	DirTypeOffset     = 0x42
	DirColorOffset    = 0x43
	DirLeftOffset     = 0x44
	DirRightOffset    = 0x48
	DirChildOffset    = 0x4C
	DirCLSIDOffset    = 0x50
	DirStateOffset    = 0x60
	DirCreatedOffset  = 0x64
	DirModifiedOffset = 0x6C
	DirStartOffset    = 0x74
	DirSizeOffset     = 0x78

	// DirNameBytes is the fixed size of the name field; DirMaxNameUnits
	// bounds the UTF-16 unit count including the terminator.
	DirNameBytes    = 64
	DirMaxNameUnits = 32
)

// Sanity limits on attacker-controlled counts. The core has no timeout or
// cancellation, so declared sizes are bounded up front before any
// allocation proportional to them.
const (
	// MaxSectorCount caps the total number of big sectors (8 GiB of
	// 512-byte sectors).
	MaxSectorCount = 1 << 24

	// MaxDirEntries caps the directory record count.
	MaxDirEntries = 1 << 22

	// MaxDIFATSectors caps the DIFAT chain length.
	MaxDIFATSectors = 1 << 16

	// MaxMiniSectors caps the number of mini-stream sectors.
	MaxMiniSectors = 1 << 26
)
