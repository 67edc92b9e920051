package store

import (
	"fmt"
	"time"

	"github.com/phuslu/log"
)

// IndexEntry represents the location of a key's most recent record in the log
type IndexEntry struct {
	Offset int64 // Byte offset where the record starts
	Size   int64 // Encoded size of the record in bytes
}

// IndexType selects the in-memory index implementation
type IndexType string

const (
	IndexHash  IndexType = "hash"  // Go map, O(1) lookups
	IndexBTree IndexType = "btree" // google/btree, ordered
	IndexRadix IndexType = "art"   // adaptive radix tree, prefix friendly
)

// ParseIndexType validates an index type name, defaulting to hash when empty
func ParseIndexType(s string) (IndexType, error) {
	switch IndexType(s) {
	case "", IndexHash:
		return IndexHash, nil
	case IndexBTree:
		return IndexBTree, nil
	case IndexRadix:
		return IndexRadix, nil
	default:
		return "", fmt.Errorf("unknown index type %q (want hash, btree or art)", s)
	}
}

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath      string        // Path to the data file
	FsyncInterval time.Duration // How often to fsync (0 = every write)
}

// LogReaderConfig holds configuration for the log reader
type LogReaderConfig struct {
	FilePath string // Path to the data file
}

// KVStoreConfig holds configuration for the key-value store
type KVStoreConfig struct {
	Path          string        // Data file; created if absent
	FsyncInterval time.Duration // Fsync interval for durability
	IndexType     IndexType     // Index implementation, hash when empty
	IndexCache    bool          // Restore the index from the cache record on Load
	Logger        *log.Logger   // Optional; discards when nil
}

// LoadResult describes how the index was rebuilt
type LoadResult struct {
	RecordsReplayed int64         // Records decoded from the log
	Tombstones      int64         // Tombstones among them
	StartOffset     int64         // Offset replay started from
	FromCache       bool          // Index came from the cache record
	CacheFallback   bool          // A cache existed but could not be used
	CacheID         string        // Flush ID of the restored cache
	Keys            int           // Live keys after loading
	Duration        time.Duration // Wall time spent in Load
}

// FlushResult describes a written index cache record
type FlushResult struct {
	ID     string `json:"id"`     // KSUID of this flush
	Offset int64  `json:"offset"` // Offset of the cache record in the log
	Keys   int    `json:"keys"`   // Keys captured in the snapshot
}

// StoreStats holds statistics about the store
type StoreStats struct {
	Keys      int   `json:"keys"`
	DataSize  int64 `json:"data_size"`
	LiveBytes int64 `json:"live_bytes"`
	DeadBytes int64 `json:"dead_bytes"`
	Loaded    bool  `json:"loaded"`
}
