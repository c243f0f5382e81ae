package format

import (
	"errors"
	"testing"
	"time"
)

func TestParseHeaderSuccess(t *testing.T) {
	h := Header{
		MajorVersion:   3,
		MinorVersion:   0x3E,
		SectorShift:    SectorShiftV3,
		FATSectors:     1,
		FirstDirSector: 0,
		FirstMiniFAT:   EndOfChain,
		FirstDIFAT:     EndOfChain,
	}
	for i := range h.DIFAT {
		h.DIFAT[i] = FreeSect
	}
	h.DIFAT[0] = 2

	got, err := ParseHeader(EncodeHeader(h))
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got.SectorSize() != 512 {
		t.Fatalf("sector size = %d, want 512", got.SectorSize())
	}
	if got.FATSectors != 1 || got.DIFAT[0] != 2 || got.DIFAT[1] != FreeSect {
		t.Fatalf("header mismatch: %+v", got)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 10)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected truncation error, got %v", err)
	}
	b := make([]byte, HeaderSize)
	if _, err := ParseHeader(b); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if HasSignature(b) {
		t.Fatalf("HasSignature should be false for zero buffer")
	}
	if HasSignature(nil) {
		t.Fatalf("HasSignature should be false for nil")
	}

	// Valid signature, bad sector shift.
	h := Header{SectorShift: 0x0008, MajorVersion: 3}
	if _, err := ParseHeader(EncodeHeader(h)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported sector shift, got %v", err)
	}
}

func TestDirEntryRoundTrip(t *testing.T) {
	e := DirEntry{
		Name:        "__properties_version1.0",
		Type:        ObjStream,
		Color:       ColorBlack,
		Left:        NoStream,
		Right:       3,
		Child:       NoStream,
		StartSector: 7,
		Size:        4096,
	}
	b := make([]byte, DirEntrySize)
	if err := EncodeDirEntry(e, b); err != nil {
		t.Fatalf("EncodeDirEntry: %v", err)
	}
	got, err := DecodeDirEntry(b)
	if err != nil {
		t.Fatalf("DecodeDirEntry: %v", err)
	}
	if got != e {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, e)
	}
}

func TestDirEntryNameLimit(t *testing.T) {
	long := make([]rune, DirMaxNameUnits)
	for i := range long {
		long[i] = 'x'
	}
	b := make([]byte, DirEntrySize)
	if err := EncodeDirEntry(DirEntry{Name: string(long)}, b); err == nil {
		t.Fatalf("expected error for %d-unit name", len(long))
	}
}

func TestCompareNames(t *testing.T) {
	// Shorter UTF-16 encoding wins regardless of code point order.
	if CompareNames("zz", "aaa") >= 0 {
		t.Fatalf("shorter name should sort first")
	}
	if CompareNames("abc", "ABC") != 0 {
		t.Fatalf("comparison should be case-insensitive")
	}
	if CompareNames("abd", "abc") <= 0 {
		t.Fatalf("lexicographic tie-break failed")
	}
}

func TestFiletime(t *testing.T) {
	if got := FiletimeToTime(FiletimeEpochDelta); !got.Equal(time.Unix(0, 0)) {
		t.Fatalf("FILETIME epoch delta should map to Unix epoch, got %v", got)
	}
	// The 1601 epoch itself floors at the Unix epoch.
	if got := FiletimeToTime(0); !got.Equal(time.Unix(0, 0)) {
		t.Fatalf("FILETIME zero = %v, want Unix epoch", got)
	}
	if got := FiletimeToUnixMs(FiletimeEpochDelta); got != 0 {
		t.Fatalf("unix ms at epoch = %d, want 0", got)
	}
	// 2021-01-01T00:00:00Z.
	ref := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	ft := TimeToFiletime(ref)
	if got := FiletimeToTime(ft); !got.Equal(ref) {
		t.Fatalf("round trip = %v, want %v", got, ref)
	}
	if got := MinutesToTime(0); !got.Equal(time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("MinutesToTime(0) = %v", got)
	}
}
