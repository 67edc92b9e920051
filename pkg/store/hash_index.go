package store

import (
	"sort"
	"strings"
	"sync"
)

// HashIndex provides O(1) average-case lookups for key locations
type HashIndex struct {
	entries map[string]IndexEntry
	mutex   sync.RWMutex
}

// NewHashIndex creates a new hash index
func NewHashIndex() *HashIndex {
	return &HashIndex{
		entries: make(map[string]IndexEntry),
	}
}

// Lookup retrieves the index entry for a key
func (idx *HashIndex) Lookup(key []byte) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	entry, exists := idx.entries[string(key)]
	return entry, exists
}

// Set adds or replaces the entry for a key
func (idx *HashIndex) Set(key []byte, entry IndexEntry) {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries[string(key)] = entry
}

// Remove deletes a key from the index
func (idx *HashIndex) Remove(key []byte) bool {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	keyStr := string(key)
	if _, exists := idx.entries[keyStr]; !exists {
		return false
	}
	delete(idx.entries, keyStr)
	return true
}

// Snapshot returns a copy of every entry
func (idx *HashIndex) Snapshot() map[string]IndexEntry {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	out := make(map[string]IndexEntry, len(idx.entries))
	for k, v := range idx.entries {
		out[k] = v
	}
	return out
}

// Replace discards the current entries and installs a copy of entries
func (idx *HashIndex) Replace(entries map[string]IndexEntry) {
	fresh := make(map[string]IndexEntry, len(entries))
	for k, v := range entries {
		fresh[k] = v
	}

	idx.mutex.Lock()
	idx.entries = fresh
	idx.mutex.Unlock()
}

// Keys returns the sorted keys that start with prefix
func (idx *HashIndex) Keys(prefix []byte) []string {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	p := string(prefix)
	keys := make([]string, 0)
	for key := range idx.entries {
		if strings.HasPrefix(key, p) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Size returns the number of keys in the index
func (idx *HashIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return len(idx.entries)
}

// Clear removes all entries from the index
func (idx *HashIndex) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries = make(map[string]IndexEntry)
}
