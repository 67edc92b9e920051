package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	bolt "go.etcd.io/bbolt"
)

// ReservedIndexKey is the key under which the index cache record is stored.
// User keys must never equal it.
const ReservedIndexKey = "+index+"

var (
	manifestBucket = []byte("index_cache")
	offsetKey      = []byte("offset")
	idKey          = []byte("id")
	flushedAtKey   = []byte("flushed_at")
)

// cacheBlob is the value of an index cache record
type cacheBlob struct {
	ID      string
	Entries map[string]IndexEntry
}

// IndexCache persists index snapshots as records in the log and remembers the
// newest one in a small bbolt manifest next to the data file, so Load can find
// it without scanning.
type IndexCache struct {
	path string
	db   *bolt.DB
}

func manifestPath(dataFile string) string {
	return dataFile + ".manifest"
}

// OpenIndexCache opens or creates the manifest for a data file
func OpenIndexCache(dataFile string) (*IndexCache, error) {
	path := manifestPath(dataFile)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open index cache manifest %s", path)
	}
	return &IndexCache{path: path, db: db}, nil
}

// Close closes the manifest
func (c *IndexCache) Close() error {
	return c.db.Close()
}

// Record points the manifest at a freshly written cache record
func (c *IndexCache) Record(offset int64, id ksuid.KSUID) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(manifestBucket)
		if err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(offset))
		if err := b.Put(offsetKey, buf[:]); err != nil {
			return err
		}
		if err := b.Put(idKey, []byte(id.String())); err != nil {
			return err
		}
		return b.Put(flushedAtKey, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
}

// Latest returns the offset and ID of the newest cache record, if any
func (c *IndexCache) Latest() (offset int64, id string, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(manifestBucket)
		if b == nil {
			return nil
		}
		raw := b.Get(offsetKey)
		if raw == nil {
			return nil
		}
		if len(raw) != 8 {
			return errors.Newf("manifest offset has %d bytes", len(raw))
		}
		offset = int64(binary.BigEndian.Uint64(raw))
		id = string(b.Get(idKey))
		ok = true
		return nil
	})
	return offset, id, ok, err
}

// restore loads the newest cache record through reader. It returns nil entries
// when no cache has been written. On success the reserved key is reinstated and
// end is the offset just past the cache record, where tail replay resumes.
func (c *IndexCache) restore(reader *LogReader) (entries map[string]IndexEntry, end int64, id string, err error) {
	offset, id, ok, err := c.Latest()
	if err != nil {
		return nil, 0, "", newError(KindCacheDeserialize, "load", nil, err)
	}
	if !ok {
		return nil, 0, "", nil
	}

	record, err := reader.ReadAt(offset)
	if err != nil {
		return nil, 0, "", newError(KindCacheDeserialize, "load", nil, err)
	}
	if string(record.Key) != ReservedIndexKey {
		return nil, 0, "", newError(KindCacheDeserialize, "load", nil,
			errors.Newf("record at offset %d is not an index cache", offset))
	}

	blob, err := decodeCacheBlob(record.Value)
	if err != nil {
		return nil, 0, "", newError(KindCacheDeserialize, "load", nil, err)
	}
	if blob.ID != id {
		return nil, 0, "", newError(KindCacheDeserialize, "load", nil,
			errors.Newf("cache record id %s does not match manifest id %s", blob.ID, id))
	}
	for key, entry := range blob.Entries {
		if entry.Offset < 0 || entry.Offset+entry.Size > offset {
			return nil, 0, "", newError(KindCacheDeserialize, "load", []byte(key),
				errors.Newf("entry %d+%d lies past the cache record at %d", entry.Offset, entry.Size, offset))
		}
	}

	entries = blob.Entries
	if entries == nil {
		entries = make(map[string]IndexEntry)
	}
	size := int64(record.Size())
	entries[ReservedIndexKey] = IndexEntry{Offset: offset, Size: size}
	return entries, offset + size, id, nil
}

func encodeCacheBlob(id ksuid.KSUID, entries map[string]IndexEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cacheBlob{ID: id.String(), Entries: entries}); err != nil {
		return nil, errors.Wrap(err, "encode index cache")
	}
	return buf.Bytes(), nil
}

func decodeCacheBlob(data []byte) (*cacheBlob, error) {
	var blob cacheBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&blob); err != nil {
		return nil, errors.Wrap(err, "decode index cache")
	}
	return &blob, nil
}
