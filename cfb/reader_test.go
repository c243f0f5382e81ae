package cfb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgtools/msgkit/cfb"
)

func TestIsCompound(t *testing.T) {
	assert.False(t, cfb.IsCompound(nil))
	assert.False(t, cfb.IsCompound([]byte("From: a@example.com\r\n")))
	assert.True(t, cfb.IsCompound([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0}))
}

// Foreign input is an error value, never a panic; the distinct sentinel
// lets callers fall back to EML parsing.
func TestNewRejectsForeignInput(t *testing.T) {
	_, err := cfb.New([]byte("plain text, definitely not a compound file"))
	assert.ErrorIs(t, err, cfb.ErrNotCompound)

	_, err = cfb.New(nil)
	assert.ErrorIs(t, err, cfb.ErrNotCompound)
}

// A valid magic followed by garbage must fail with a structural error,
// not ErrNotCompound and not a partial result.
func TestNewRejectsTruncatedFile(t *testing.T) {
	b := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	_, err := cfb.New(b)
	require.Error(t, err)
	assert.NotErrorIs(t, err, cfb.ErrNotCompound)
}

func TestNewRejectsTruncatedSectors(t *testing.T) {
	entries := []cfb.WriterEntry{
		{Type: cfb.Root, Name: "Root Entry", Children: []int{1}},
		{Type: cfb.Stream, Name: "s", Size: 100, Bytes: provider(pattern(100))},
	}
	out, err := cfb.Write(entries)
	require.NoError(t, err)

	// Chop the file mid-sector: parsing must fail hard rather than
	// zero-fill the missing tail.
	_, err = cfb.New(out[:len(out)-200])
	require.Error(t, err)
}

func TestEntryInfo(t *testing.T) {
	entries := []cfb.WriterEntry{
		{Type: cfb.Root, Name: "Root Entry", Children: []int{1}},
		{Type: cfb.Storage, Name: "folder", Children: []int{2}},
		{Type: cfb.Stream, Name: "leaf", Size: 3, Bytes: provider([]byte{1, 2, 3})},
	}
	out, err := cfb.Write(entries)
	require.NoError(t, err)
	r, err := cfb.New(out)
	require.NoError(t, err)

	require.Equal(t, 4, r.EntryCount()) // one free record pads the sector

	info, err := r.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, cfb.Root, info.Type)
	assert.Equal(t, []int{1}, info.Children)

	info, err = r.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, cfb.Storage, info.Type)
	assert.Equal(t, "folder", info.Name)
	assert.Equal(t, []int{2}, info.Children)

	_, err = r.Entry(99)
	assert.Error(t, err)
}
