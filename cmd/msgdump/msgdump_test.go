package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/msgtools/msgkit/cfb"
)

// writeFixture builds a minimal .msg with one attachment on disk.
func writeFixture(t *testing.T) string {
	t.Helper()

	utf16 := func(s string) []byte {
		var b []byte
		for _, r := range s {
			b = append(b, byte(r), byte(r>>8))
		}
		return b
	}
	provider := func(b []byte) func() ([]byte, error) {
		return func() ([]byte, error) { return b, nil }
	}

	subject := utf16("fixture")
	payload := []byte("attachment body")
	fname := utf16("notes.txt")
	entries := []cfb.WriterEntry{
		{Type: cfb.Root, Name: "Root Entry", Children: []int{1, 2}},
		{Type: cfb.Stream, Name: "__substg1.0_0037001F", Size: uint64(len(subject)), Bytes: provider(subject)},
		{Type: cfb.Storage, Name: "__attach_version1.0_#00000000", Children: []int{3, 4}},
		{Type: cfb.Stream, Name: "__substg1.0_37010102", Size: uint64(len(payload)), Bytes: provider(payload)},
		{Type: cfb.Stream, Name: "__substg1.0_3707001F", Size: uint64(len(fname)), Bytes: provider(fname)},
	}
	out, err := cfb.Write(entries)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fixture.msg")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunInfo(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()

	if err := runInfo([]string{writeFixture(t)}); err != nil {
		t.Fatalf("runInfo: %v", err)
	}
	if err := runInfo([]string{filepath.Join(t.TempDir(), "missing.msg")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRunTree(t *testing.T) {
	quiet = true
	defer func() { quiet = false }()

	if err := runTree([]string{writeFixture(t)}); err != nil {
		t.Fatalf("runTree: %v", err)
	}
}

func TestRunExtract(t *testing.T) {
	quiet = true
	dir := t.TempDir()
	extractDir = dir
	defer func() {
		quiet = false
		extractDir = "."
	}()

	if err := runExtract([]string{writeFixture(t)}); err != nil {
		t.Fatalf("runExtract: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil {
		t.Fatalf("extracted file: %v", err)
	}
	if string(got) != "attachment body" {
		t.Fatalf("payload = %q", got)
	}
}

func TestRenderValue(t *testing.T) {
	if got := renderValue([]byte{1, 2, 3}); got != "<3 bytes>" {
		t.Fatalf("bytes: %q", got)
	}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := renderValue(ts); got != "2024-01-02T03:04:05Z" {
		t.Fatalf("time: %q", got)
	}
	if got := renderValue(int32(7)); got != "7" {
		t.Fatalf("int: %q", got)
	}
}
