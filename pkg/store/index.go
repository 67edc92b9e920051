package store

import "fmt"

// Indexer maps each key to the location of its most recent record.
// Set always overwrites; Remove reports whether the key was present and
// leaves NotFound handling to the caller.
type Indexer interface {
	Lookup(key []byte) (IndexEntry, bool)
	Set(key []byte, entry IndexEntry)
	Remove(key []byte) bool
	Snapshot() map[string]IndexEntry
	Replace(entries map[string]IndexEntry)
	Keys(prefix []byte) []string // sorted
	Size() int
	Clear()
}

const defaultBTreeDegree = 32

// NewIndexer creates an empty index of the given type
func NewIndexer(kind IndexType) (Indexer, error) {
	switch kind {
	case "", IndexHash:
		return NewHashIndex(), nil
	case IndexBTree:
		return NewBTreeIndex(defaultBTreeDegree), nil
	case IndexRadix:
		return NewRadixIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index type %q", kind)
	}
}
