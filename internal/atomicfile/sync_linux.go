//go:build linux || freebsd

package atomicfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync skips the metadata flush; the rename that follows forces
// the directory update anyway.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// syncDir makes the rename itself durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
