// Package storage copies the live contents of a store into other embedded
// databases for backup or migration.
package storage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	bolt "go.etcd.io/bbolt"
)

const (
	FormatPebble = "pebble"
	FormatBolt   = "bolt"

	// DefaultBucket receives exported pairs in bolt files
	DefaultBucket = "actionkv"

	defaultBatchSize = 1000
)

// Sink receives key-value pairs. Writes may be buffered until Flush or Close.
type Sink interface {
	Put(key, value []byte) error
	Flush() error
	Close() error
}

// OpenSink opens a sink of the given format at path
func OpenSink(format, path string) (Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	switch format {
	case FormatPebble:
		return NewPebbleSink(path, defaultBatchSize)
	case FormatBolt:
		return NewBoltSink(path, DefaultBucket, defaultBatchSize)
	default:
		return nil, errors.Newf("unknown export format %q (want pebble or bolt)", format)
	}
}

// PebbleSink writes pairs into a pebble database in batches
type PebbleSink struct {
	db        *pebble.DB
	batch     *pebble.Batch
	batchSize int
	pending   int
}

// NewPebbleSink opens or creates the pebble database at path
func NewPebbleSink(path string, batchSize int) (*PebbleSink, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble at %s", path)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PebbleSink{db: db, batch: db.NewBatch(), batchSize: batchSize}, nil
}

func (s *PebbleSink) Put(key, value []byte) error {
	if err := s.batch.Set(key, value, nil); err != nil {
		return err
	}
	s.pending++
	if s.pending >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush commits the pending batch
func (s *PebbleSink) Flush() error {
	if s.pending == 0 {
		return nil
	}
	if err := s.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "commit pebble batch")
	}
	if err := s.batch.Close(); err != nil {
		return err
	}
	s.batch = s.db.NewBatch()
	s.pending = 0
	return nil
}

func (s *PebbleSink) Close() error {
	err := s.Flush()
	err = errors.CombineErrors(err, s.batch.Close())
	return errors.CombineErrors(err, s.db.Close())
}

type pair struct {
	key, value []byte
}

// BoltSink writes pairs into one bucket of a bbolt file, a transaction per batch
type BoltSink struct {
	db        *bolt.DB
	bucket    []byte
	batchSize int
	pending   []pair
}

// NewBoltSink opens or creates the bolt file at path
func NewBoltSink(path, bucket string, batchSize int) (*BoltSink, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt at %s", path)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &BoltSink{db: db, bucket: []byte(bucket), batchSize: batchSize}, nil
}

func (s *BoltSink) Put(key, value []byte) error {
	// bolt keeps references until commit
	s.pending = append(s.pending, pair{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush writes the pending pairs in one transaction
func (s *BoltSink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		for _, p := range s.pending {
			if err := b.Put(p.key, p.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "write bolt batch")
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *BoltSink) Close() error {
	return errors.CombineErrors(s.Flush(), s.db.Close())
}
