//go:build !unix && !windows

// Package mmfile maps message files into memory where the platform
// supports it, falling back to a plain read elsewhere.
package mmfile

import "os"

// Map reads the entire file when mmap is not available.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}
