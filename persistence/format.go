package persistence

import "errors"

const (
	// MagicNumber identifies a shindex snapshot file ("SHDX").
	MagicNumber uint32 = 0x53484458

	// Version is the current snapshot format version.
	Version uint16 = 1
)

// Snapshot layout, all integers little-endian:
//
//	header:  magic u32 | version u16 | compression u8 | reserved u8
//	trailer: payloadCRC u32 | payloadLen u64 | blockLen u64 | block bytes
//
// The block is the payload compressed with the named codec (or stored as-is
// for CompressionNone). The CRC (CRC-32C, Castagnoli) covers the uncompressed
// payload. Payload sections, in order: corpus (dim, vectors), provenance
// (recording id per item), KD-tree (leaf size, node arena, item permutation),
// HNSW (M, heuristic flag, entry point, max level, per-item levels and
// per-layer adjacency lists).

var (
	// ErrBadMagic is returned when the input is not a shindex snapshot.
	ErrBadMagic = errors.New("persistence: bad magic number")

	// ErrBadVersion is returned for snapshot versions this build cannot read.
	ErrBadVersion = errors.New("persistence: unsupported snapshot version")

	// ErrChecksum is returned when the payload fails CRC verification.
	ErrChecksum = errors.New("persistence: payload checksum mismatch")
)
