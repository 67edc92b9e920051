package store

import (
	"sort"
	"sync"

	art "github.com/plar/go-adaptive-radix-tree"
)

// RadixIndex stores key locations in an adaptive radix tree.
// Keys that share long prefixes are stored once per shared prefix.
// The tree cannot hold a zero-length key, so the empty key lives in its own slot.
type RadixIndex struct {
	tree  art.Tree
	empty *IndexEntry
	mutex sync.RWMutex
}

// NewRadixIndex creates an empty radix index
func NewRadixIndex() *RadixIndex {
	return &RadixIndex{tree: art.New()}
}

func (idx *RadixIndex) Lookup(key []byte) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	if len(key) == 0 {
		if idx.empty == nil {
			return IndexEntry{}, false
		}
		return *idx.empty, true
	}

	value, found := idx.tree.Search(art.Key(key))
	if !found {
		return IndexEntry{}, false
	}
	return value.(IndexEntry), true
}

func (idx *RadixIndex) Set(key []byte, entry IndexEntry) {
	k := append([]byte{}, key...)

	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	if len(k) == 0 {
		idx.empty = &entry
		return
	}
	idx.tree.Insert(art.Key(k), entry)
}

func (idx *RadixIndex) Remove(key []byte) bool {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	if len(key) == 0 {
		deleted := idx.empty != nil
		idx.empty = nil
		return deleted
	}

	_, deleted := idx.tree.Delete(art.Key(key))
	return deleted
}

func (idx *RadixIndex) Snapshot() map[string]IndexEntry {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	out := make(map[string]IndexEntry, idx.sizeLocked())
	if idx.empty != nil {
		out[""] = *idx.empty
	}
	idx.tree.ForEach(func(node art.Node) bool {
		out[string(node.Key())] = node.Value().(IndexEntry)
		return true
	}, art.TraverseLeaf)
	return out
}

func (idx *RadixIndex) Replace(entries map[string]IndexEntry) {
	tree := art.New()
	var empty *IndexEntry
	for k, v := range entries {
		if k == "" {
			entry := v
			empty = &entry
			continue
		}
		tree.Insert(art.Key(k), v)
	}

	idx.mutex.Lock()
	idx.tree = tree
	idx.empty = empty
	idx.mutex.Unlock()
}

func (idx *RadixIndex) Keys(prefix []byte) []string {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	keys := make([]string, 0)
	collect := func(node art.Node) bool {
		if node.Kind() == art.Leaf {
			keys = append(keys, string(node.Key()))
		}
		return true
	}
	if len(prefix) == 0 {
		if idx.empty != nil {
			keys = append(keys, "")
		}
		idx.tree.ForEach(collect, art.TraverseLeaf)
	} else {
		idx.tree.ForEachPrefix(art.Key(prefix), collect)
	}
	sort.Strings(keys)
	return keys
}

func (idx *RadixIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return idx.sizeLocked()
}

func (idx *RadixIndex) sizeLocked() int {
	size := idx.tree.Size()
	if idx.empty != nil {
		size++
	}
	return size
}

func (idx *RadixIndex) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.tree = art.New()
	idx.empty = nil
}
