package store

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/phuslu/log"
	"github.com/segmentio/ksuid"
)

// KVStore provides the main key-value store interface. One KVStore owns the
// data file, enforced across processes with an advisory lock file.
type KVStore struct {
	config    KVStoreConfig
	writer    *LogWriter
	reader    *LogReader
	index     Indexer
	cache     *IndexCache
	fileLock  *flock.Flock
	logger    *log.Logger
	mutex     sync.RWMutex
	isOpen    bool
	loaded    bool
	loadErr   error // set when Load fails; the store refuses work until reopened
	unflushed int   // writes since the last index cache flush
}

// NewKVStore creates a new key-value store instance. Call Open, then Load.
func NewKVStore(config KVStoreConfig) (*KVStore, error) {
	if config.Path == "" {
		return nil, errors.New("store path is required")
	}

	kind, err := ParseIndexType(string(config.IndexType))
	if err != nil {
		return nil, err
	}
	config.IndexType = kind

	index, err := NewIndexer(kind)
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
	}

	return &KVStore{
		config: config,
		index:  index,
		logger: logger,
	}, nil
}

// Open creates a store for path with default settings and opens it
func Open(path string) (*KVStore, error) {
	kv, err := NewKVStore(KVStoreConfig{Path: path})
	if err != nil {
		return nil, err
	}
	if err := kv.Open(); err != nil {
		return nil, err
	}
	return kv, nil
}

// Open attaches the data file, creating it if absent. The index starts empty.
func (kv *KVStore) Open() error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if kv.isOpen {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(kv.config.Path), 0750); err != nil {
		return newError(KindIO, "open", nil, err)
	}

	fileLock := flock.New(kv.config.Path + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return newError(KindIO, "open", nil, err)
	}
	if !locked {
		return newError(KindLocked, "open", nil, errors.Newf("lock %s is held", fileLock.Path()))
	}

	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      kv.config.Path,
		FsyncInterval: kv.config.FsyncInterval,
	})
	if err != nil {
		_ = fileLock.Unlock()
		return newError(KindIO, "open", nil, err)
	}

	reader, err := NewLogReader(LogReaderConfig{FilePath: kv.config.Path})
	if err != nil {
		_ = writer.Close()
		_ = fileLock.Unlock()
		return newError(KindIO, "open", nil, err)
	}

	if kv.config.IndexCache {
		cache, err := OpenIndexCache(kv.config.Path)
		if err != nil {
			_ = reader.Close()
			_ = writer.Close()
			_ = fileLock.Unlock()
			return newError(KindIO, "open", nil, err)
		}
		kv.cache = cache
	}

	kv.fileLock = fileLock
	kv.writer = writer
	kv.reader = reader
	kv.index.Clear()
	kv.isOpen = true
	kv.loaded = false
	kv.loadErr = nil
	kv.unflushed = 0

	kv.logger.Debug().Str("path", kv.config.Path).Int64("size", writer.Size()).
		Str("index", string(kv.config.IndexType)).Msg("store opened")
	return nil
}

// Load rebuilds the index. With the index cache enabled it restores the
// newest cache record and replays only the records appended after it;
// otherwise, or when the cache is missing or unreadable, it replays the
// whole log. A failed Load leaves the store unusable until it is reopened.
func (kv *KVStore) Load() (*LoadResult, error) {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if !kv.isOpen {
		return nil, newError(KindClosed, "load", nil, nil)
	}

	start := time.Now()
	result := &LoadResult{}
	kv.index.Clear()

	if kv.config.IndexCache && kv.cache != nil {
		entries, end, id, err := kv.cache.restore(kv.reader)
		switch {
		case err != nil:
			kv.logger.Warn().Err(err).Str("path", kv.config.Path).Msg("index cache unusable, replaying full log")
			result.CacheFallback = true
		case entries != nil:
			kv.index.Replace(entries)
			result.FromCache = true
			result.CacheID = id
			result.StartOffset = end
		}
	}

	replayed, tombstones, err := kv.replay(result.StartOffset)
	if err != nil {
		kv.index.Clear()
		kv.loaded = false
		kv.loadErr = err
		kv.logger.Error().Err(err).Str("path", kv.config.Path).Msg("load failed")
		return nil, err
	}

	kv.loaded = true
	kv.loadErr = nil
	kv.unflushed = 0

	result.RecordsReplayed = replayed
	result.Tombstones = tombstones
	result.Keys = kv.userKeyCount()
	result.Duration = time.Since(start)

	kv.logger.Info().Str("path", kv.config.Path).Int64("replayed", replayed).
		Bool("from_cache", result.FromCache).Int("keys", result.Keys).
		Dur("duration", result.Duration).Msg("store loaded")
	return result, nil
}

// replay scans the log from offset and applies each record to the index
func (kv *KVStore) replay(from int64) (replayed, tombstones int64, err error) {
	scanner := kv.reader.Scan(from)
	for scanner.Next() {
		record := scanner.Record()
		if record.IsTombstone() {
			kv.index.Remove(record.Key)
			tombstones++
		} else {
			kv.index.Set(record.Key, IndexEntry{Offset: scanner.Offset(), Size: int64(record.Size())})
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return replayed, tombstones, classify("load", nil, err)
	}
	return replayed, tombstones, nil
}

// Get retrieves the value for a key. found is false when the key was never
// written or has been deleted.
func (kv *KVStore) Get(key []byte) (value []byte, found bool, err error) {
	kv.mutex.RLock()
	defer kv.mutex.RUnlock()

	if err := kv.checkUsable("get"); err != nil {
		return nil, false, err
	}
	return kv.getInternal(key)
}

func (kv *KVStore) getInternal(key []byte) ([]byte, bool, error) {
	entry, exists := kv.index.Lookup(key)
	if !exists {
		return nil, false, nil
	}

	record, err := kv.reader.ReadAt(entry.Offset)
	if err != nil {
		return nil, false, classify("get", key, err)
	}
	if !bytes.Equal(record.Key, key) {
		return nil, false, newError(KindCorruption, "get", key,
			errors.Newf("offset %d holds key %q", entry.Offset, record.Key))
	}
	if record.IsTombstone() {
		return nil, false, nil
	}
	return record.Value, true, nil
}

// Insert stores a key-value pair, replacing any previous value
func (kv *KVStore) Insert(key, value []byte) error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkUsable("insert"); err != nil {
		return err
	}
	return kv.putInternal("insert", key, value)
}

// Update behaves exactly like Insert; updating a missing key creates it
func (kv *KVStore) Update(key, value []byte) error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkUsable("update"); err != nil {
		return err
	}
	return kv.putInternal("update", key, value)
}

// putInternal appends a record and points the index at it. An empty value
// is a tombstone and drops the key, matching what replay does.
// Callers must hold the write lock.
func (kv *KVStore) putInternal(op string, key, value []byte) error {
	entry, err := kv.writer.Put(key, value)
	if err != nil {
		return classify(op, key, err)
	}
	if len(value) == 0 {
		kv.index.Remove(key)
	} else {
		kv.index.Set(key, entry)
	}
	kv.unflushed++
	return nil
}

// Delete appends a tombstone for key and drops it from the index.
// Deleting a key that is not indexed returns ErrKeyNotFound.
func (kv *KVStore) Delete(key []byte) error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkUsable("delete"); err != nil {
		return err
	}

	if _, exists := kv.index.Lookup(key); !exists {
		return newError(KindNotFound, "delete", key, nil)
	}

	return kv.putInternal("delete", key, nil)
}

// Flush writes the current index as a cache record under ReservedIndexKey
// and records its location in the manifest. The store must be loaded.
func (kv *KVStore) Flush() (*FlushResult, error) {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if err := kv.checkUsable("flush"); err != nil {
		return nil, err
	}
	return kv.flushInternal()
}

func (kv *KVStore) flushInternal() (*FlushResult, error) {
	if !kv.loaded {
		return nil, newError(KindNotLoaded, "flush", nil, nil)
	}

	if kv.cache == nil {
		cache, err := OpenIndexCache(kv.config.Path)
		if err != nil {
			return nil, newError(KindIO, "flush", nil, err)
		}
		kv.cache = cache
	}

	snapshot := kv.index.Snapshot()
	delete(snapshot, ReservedIndexKey)

	id := ksuid.New()
	blob, err := encodeCacheBlob(id, snapshot)
	if err != nil {
		return nil, newError(KindIO, "flush", nil, err)
	}

	if err := kv.putInternal("flush", []byte(ReservedIndexKey), blob); err != nil {
		return nil, err
	}
	entry, _ := kv.index.Lookup([]byte(ReservedIndexKey))

	if err := kv.cache.Record(entry.Offset, id); err != nil {
		return nil, newError(KindIO, "flush", nil, err)
	}
	kv.unflushed = 0

	kv.logger.Debug().Str("id", id.String()).Int64("offset", entry.Offset).
		Int("keys", len(snapshot)).Msg("index cache flushed")
	return &FlushResult{ID: id.String(), Offset: entry.Offset, Keys: len(snapshot)}, nil
}

// ListKeys returns the sorted keys that start with prefix
func (kv *KVStore) ListKeys(prefix []byte) ([]string, error) {
	kv.mutex.RLock()
	defer kv.mutex.RUnlock()

	if err := kv.checkUsable("list"); err != nil {
		return nil, err
	}

	keys := kv.index.Keys(prefix)
	out := keys[:0]
	for _, k := range keys {
		if k != ReservedIndexKey {
			out = append(out, k)
		}
	}
	return out, nil
}

// Stats returns store statistics
func (kv *KVStore) Stats() *StoreStats {
	kv.mutex.RLock()
	defer kv.mutex.RUnlock()

	if !kv.isOpen {
		return &StoreStats{}
	}

	stats := &StoreStats{
		DataSize: kv.writer.Size(),
		Loaded:   kv.loaded,
	}
	for key, entry := range kv.index.Snapshot() {
		stats.LiveBytes += entry.Size
		if key != ReservedIndexKey {
			stats.Keys++
		}
	}
	stats.DeadBytes = stats.DataSize - stats.LiveBytes
	return stats
}

// Path returns the data file path
func (kv *KVStore) Path() string {
	return kv.config.Path
}

// Close flushes the index cache when enabled and dirty, then releases the
// data file and its lock
func (kv *KVStore) Close() error {
	kv.mutex.Lock()
	defer kv.mutex.Unlock()

	if !kv.isOpen {
		return nil
	}

	var err error
	if kv.config.IndexCache && kv.loaded && kv.loadErr == nil && kv.unflushed > 0 {
		if _, flushErr := kv.flushInternal(); flushErr != nil {
			kv.logger.Warn().Err(flushErr).Msg("index cache flush on close failed")
			err = errors.CombineErrors(err, flushErr)
		}
	}

	kv.isOpen = false
	kv.loaded = false

	if closeErr := kv.writer.Close(); closeErr != nil {
		err = errors.CombineErrors(err, newError(KindIO, "close", nil, closeErr))
	}
	if closeErr := kv.reader.Close(); closeErr != nil {
		err = errors.CombineErrors(err, newError(KindIO, "close", nil, closeErr))
	}
	if kv.cache != nil {
		if closeErr := kv.cache.Close(); closeErr != nil {
			err = errors.CombineErrors(err, newError(KindIO, "close", nil, closeErr))
		}
		kv.cache = nil
	}
	if unlockErr := kv.fileLock.Unlock(); unlockErr != nil {
		err = errors.CombineErrors(err, newError(KindIO, "close", nil, unlockErr))
	}

	kv.logger.Debug().Str("path", kv.config.Path).Msg("store closed")
	return err
}

func (kv *KVStore) checkUsable(op string) error {
	if !kv.isOpen {
		return newError(KindClosed, op, nil, nil)
	}
	return kv.loadErr
}

func (kv *KVStore) userKeyCount() int {
	n := kv.index.Size()
	if _, ok := kv.index.Lookup([]byte(ReservedIndexKey)); ok {
		n--
	}
	return n
}
