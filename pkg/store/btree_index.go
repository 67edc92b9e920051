package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

type btreeItem struct {
	key   []byte
	entry IndexEntry
}

func lessItem(a, b btreeItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// BTreeIndex keeps keys ordered, so prefix listings are a range scan
type BTreeIndex struct {
	tree   *btree.BTreeG[btreeItem]
	degree int
	mutex  sync.RWMutex
}

// NewBTreeIndex creates an empty B-tree index with the given node degree
func NewBTreeIndex(degree int) *BTreeIndex {
	return &BTreeIndex{
		tree:   btree.NewG(degree, lessItem),
		degree: degree,
	}
}

func (idx *BTreeIndex) Lookup(key []byte) (IndexEntry, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	item, ok := idx.tree.Get(btreeItem{key: key})
	return item.entry, ok
}

func (idx *BTreeIndex) Set(key []byte, entry IndexEntry) {
	item := btreeItem{key: append([]byte{}, key...), entry: entry}

	idx.mutex.Lock()
	idx.tree.ReplaceOrInsert(item)
	idx.mutex.Unlock()
}

func (idx *BTreeIndex) Remove(key []byte) bool {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	_, ok := idx.tree.Delete(btreeItem{key: key})
	return ok
}

func (idx *BTreeIndex) Snapshot() map[string]IndexEntry {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	out := make(map[string]IndexEntry, idx.tree.Len())
	idx.tree.Ascend(func(item btreeItem) bool {
		out[string(item.key)] = item.entry
		return true
	})
	return out
}

func (idx *BTreeIndex) Replace(entries map[string]IndexEntry) {
	tree := btree.NewG(idx.degree, lessItem)
	for k, v := range entries {
		tree.ReplaceOrInsert(btreeItem{key: []byte(k), entry: v})
	}

	idx.mutex.Lock()
	idx.tree = tree
	idx.mutex.Unlock()
}

func (idx *BTreeIndex) Keys(prefix []byte) []string {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	keys := make([]string, 0)
	idx.tree.AscendGreaterOrEqual(btreeItem{key: prefix}, func(item btreeItem) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		keys = append(keys, string(item.key))
		return true
	})
	return keys
}

func (idx *BTreeIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return idx.tree.Len()
}

func (idx *BTreeIndex) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.tree.Clear(false)
}
