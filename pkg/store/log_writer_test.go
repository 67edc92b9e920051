package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogWriter_AppendReturnsStartOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.akv")

	writer, err := NewLogWriter(LogWriterConfig{FilePath: path})
	require.NoError(t, err)
	defer writer.Close()

	first, err := writer.Put([]byte("a"), []byte("1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Offset)
	assert.Equal(t, int64(14), first.Size)

	second, err := writer.Put([]byte("bb"), []byte("22"))
	require.NoError(t, err)
	assert.Equal(t, first.Offset+first.Size, second.Offset)
	assert.Equal(t, second.Offset+second.Size, writer.Size())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, writer.Size(), info.Size())
	assert.Equal(t, path, writer.Path())
}

func TestLogWriter_ReopenContinuesAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.akv")

	writer, err := NewLogWriter(LogWriterConfig{FilePath: path})
	require.NoError(t, err)
	_, err = writer.Put([]byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	writer, err = NewLogWriter(LogWriterConfig{FilePath: path})
	require.NoError(t, err)
	defer writer.Close()

	entry, err := writer.Put([]byte("k"), []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, int64(14), entry.Offset)
}

func TestLogWriter_FsyncInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.akv")

	writer, err := NewLogWriter(LogWriterConfig{FilePath: path, FsyncInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := writer.Put([]byte("key"), []byte("value"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Sync())
	require.NoError(t, writer.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10*(12+3+5)), info.Size())
}

func TestLogWriter_BackgroundFsyncErrorIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.akv")

	writer, err := NewLogWriter(LogWriterConfig{FilePath: path, FsyncInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	_, err = writer.Put([]byte("key"), []byte("value"))
	require.NoError(t, err)

	// pull the file out from under the timer so its fsync fails
	writer.mutex.Lock()
	require.NoError(t, writer.file.Close())
	writer.mutex.Unlock()

	require.Eventually(t, func() bool { return writer.Err() != nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, writer.Err(), os.ErrClosed)

	_, err = writer.Append([]byte("more"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.ErrorIs(t, writer.Sync(), os.ErrClosed)
	assert.Error(t, writer.Close())
}

func TestLogWriter_ConcurrentAppendsDoNotOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.akv")

	writer, err := NewLogWriter(LogWriterConfig{FilePath: path, FsyncInterval: time.Second})
	require.NoError(t, err)
	defer writer.Close()

	const n = 50
	offsets := make(chan IndexEntry, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := writer.Put([]byte("key"), []byte("value"))
			assert.NoError(t, err)
			offsets <- entry
		}()
	}
	wg.Wait()
	close(offsets)

	seen := make(map[int64]bool)
	for entry := range offsets {
		assert.Zero(t, entry.Offset%entry.Size)
		assert.False(t, seen[entry.Offset], "offset %d handed out twice", entry.Offset)
		seen[entry.Offset] = true
	}
	assert.Len(t, seen, n)
}
