// Package cfb reads and writes the Microsoft Compound File Binary
// Format, the structured-storage container behind Outlook .msg files.
//
// The reader operates on a caller-supplied in-memory buffer; it performs
// no I/O of its own. A parsed Reader is immutable: repeated ReadStream
// calls are idempotent and safe to issue concurrently. The writer is the
// inverse operation, synthesizing a conformant compound file from a flat
// entry list, and the two satisfy a round-trip property: parsing a
// written buffer reproduces the identical logical tree and byte-identical
// stream contents.
package cfb
