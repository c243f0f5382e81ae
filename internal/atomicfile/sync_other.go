//go:build !linux && !freebsd && !darwin

package atomicfile

import "os"

func fdatasync(f *os.File) error {
	return f.Sync()
}

// syncDir is a no-op where directory handles cannot be synced
// (Windows renames within a volume are already metadata-atomic).
func syncDir(string) error { return nil }
