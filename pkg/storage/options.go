package storage

import "github.com/kesh-dev/tabula/pkg/wal"

// Options configures a Database, mirroring the shape of wal.Options: a
// small struct of durability and path knobs rather than functional options,
// matching the teacher's NewStorageEngine/NewWriter construction style.
type Options struct {
	// WALPath is the write-ahead log file path. Required for durability;
	// a Database opened without one runs in-memory only (no Recover, no
	// WAL-before-apply ordering to honor).
	WALPath string

	// SnapshotPath is where Save/Load read and write the sealed snapshot.
	SnapshotPath string

	// SnapshotKey is the 32-byte AES-256 key used to seal/open snapshots.
	// Required by Save/Load, not by ordinary reads/writes.
	SnapshotKey []byte

	WALOptions wal.Options
}

// DefaultOptions mirrors wal.DefaultOptions's "flush after every write"
// durability default (spec §4.8).
func DefaultOptions() Options {
	return Options{WALOptions: wal.DefaultOptions()}
}
