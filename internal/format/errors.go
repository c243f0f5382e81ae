package format

import "errors"

var (
	// ErrSignatureMismatch indicates a structure had an unexpected magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrVersion indicates a nested record carried an unsupported version tag.
	ErrVersion = errors.New("format: unsupported record version")
	// ErrReserved indicates a must-be-zero reserved field was non-zero.
	// Continuing past one of these risks misaligned offsets, so decoders
	// abort the record instead of guessing.
	ErrReserved = errors.New("format: reserved field not zero")
	// ErrSanityLimit indicates a declared count exceeded a hard cap.
	ErrSanityLimit = errors.New("format: size exceeds sanity limit")
	// ErrUnsupported indicates the structure or feature is not supported.
	ErrUnsupported = errors.New("format: unsupported feature")
	// ErrNotFound indicates a requested storage or stream was missing.
	ErrNotFound = errors.New("format: not found")
)
