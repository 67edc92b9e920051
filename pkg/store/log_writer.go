package store

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
)

// LogWriter handles append-only writes to the data file
type LogWriter struct {
	file       *os.File
	codec      *codec.RecordCodec
	fsyncTimer *time.Timer
	config     LogWriterConfig
	mutex      sync.Mutex
	offset     int64 // Current end of file
	dirty      bool  // Appended since the last fsync
	syncErr    error // First failed background fsync, reported by the next call
}

// NewLogWriter opens (or creates) the data file for appending
func NewLogWriter(config LogWriterConfig) (*LogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	writer := &LogWriter{
		file:   file,
		codec:  codec.NewRecordCodec(),
		config: config,
		offset: stat.Size(),
	}

	if config.FsyncInterval > 0 {
		writer.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			writer.mutex.Lock()
			defer writer.mutex.Unlock()
			if err := writer.sync(); err != nil && writer.syncErr == nil {
				writer.syncErr = errors.Wrap(err, "background fsync")
			}
		})
	}

	return writer, nil
}

// Put encodes a key-value pair and appends it, returning where it landed
func (w *LogWriter) Put(key, value []byte) (IndexEntry, error) {
	data, err := w.codec.Encode(key, value)
	if err != nil {
		return IndexEntry{}, err
	}

	offset, err := w.Append(data)
	if err != nil {
		return IndexEntry{}, err
	}
	return IndexEntry{Offset: offset, Size: int64(len(data))}, nil
}

// Append writes data at the end of the file in a single write and returns
// the offset where it begins. A failed write is truncated away so the next
// append starts on a record boundary.
func (w *LogWriter) Append(data []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.syncErr != nil {
		return 0, w.syncErr
	}

	recordOffset := w.offset

	n, err := w.file.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if n > 0 {
			if truncErr := w.file.Truncate(recordOffset); truncErr != nil {
				return 0, errors.CombineErrors(err, truncErr)
			}
		}
		return 0, err
	}

	w.offset += int64(n)
	w.dirty = true

	if w.config.FsyncInterval == 0 {
		if err := w.sync(); err != nil {
			return 0, err
		}
	} else if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}

	return recordOffset, nil
}

// Sync forces a fsync to disk
func (w *LogWriter) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.syncErr != nil {
		return w.syncErr
	}
	return w.sync()
}

// Err returns the error from a failed background fsync, if any
func (w *LogWriter) Err() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.syncErr
}

func (w *LogWriter) sync() error {
	if !w.dirty {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.dirty = false
	return nil
}

// Close closes the log writer and ensures all data is synced
func (w *LogWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}

	if w.syncErr != nil {
		return errors.CombineErrors(w.syncErr, w.file.Close())
	}
	if err := w.sync(); err != nil {
		return errors.CombineErrors(err, w.file.Close())
	}
	return w.file.Close()
}

// Size returns the current size of the log file
func (w *LogWriter) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Path returns the file path
func (w *LogWriter) Path() string {
	return w.config.FilePath
}
