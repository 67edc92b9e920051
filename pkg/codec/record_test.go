package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec := NewRecordCodec()

	testCases := []struct {
		name  string
		key   []byte
		value []byte
	}{
		{name: "simple string key-value", key: []byte("user:123"), value: []byte("john@example.com")},
		{name: "empty key", key: []byte(""), value: []byte("some value")},
		{name: "empty value", key: []byte("some key"), value: []byte("")},
		{name: "both empty", key: []byte(""), value: []byte("")},
		{name: "binary data", key: []byte{0x00, 0x01, 0x02, 0x03}, value: []byte{0xFF, 0xFE, 0xFD, 0xFC}},
		{name: "large key", key: bytes.Repeat([]byte("k"), 1024), value: []byte("small value")},
		{name: "large value", key: []byte("small key"), value: bytes.Repeat([]byte("v"), 10240)},
		{name: "unicode data", key: []byte("🔑 unicode key"), value: []byte("🎯 unicode value with émojis")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := codec.Encode(tc.key, tc.value)
			require.NoError(t, err)
			assert.Len(t, encoded, HeaderSize+len(tc.key)+len(tc.value))

			record, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tc.key, record.Key))
			assert.True(t, bytes.Equal(tc.value, record.Value))

			streamed, err := codec.DecodeFrom(bytes.NewReader(encoded))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tc.key, streamed.Key))
			assert.True(t, bytes.Equal(tc.value, streamed.Value))
		})
	}
}

func TestRecordCodec_WireLayout(t *testing.T) {
	codec := NewRecordCodec()

	encoded, err := codec.Encode([]byte("a"), []byte("1"))
	require.NoError(t, err)

	// crc32("a1") under the IEEE polynomial
	assert.Equal(t, uint32(0x6CE14823), binary.LittleEndian.Uint32(encoded[0:4]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(encoded[4:8]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(encoded[8:12]))
	assert.Equal(t, []byte("a1"), encoded[12:])
}

func TestRecordCodec_ChecksumSensitivity(t *testing.T) {
	codec := NewRecordCodec()

	encoded, err := codec.Encode([]byte("key"), []byte("value"))
	require.NoError(t, err)

	for i := HeaderSize; i < len(encoded); i++ {
		for bit := 0; bit < 8; bit++ {
			damaged := append([]byte(nil), encoded...)
			damaged[i] ^= 1 << bit

			_, err := codec.Decode(damaged)
			assert.Truef(t, errors.Is(err, ErrCorruption), "byte %d bit %d: got %v", i, bit, err)

			_, err = codec.DecodeFrom(bytes.NewReader(damaged))
			assert.Truef(t, errors.Is(err, ErrCorruption), "stream byte %d bit %d: got %v", i, bit, err)
		}
	}
}

func TestRecordCodec_CorruptedChecksumField(t *testing.T) {
	codec := NewRecordCodec()

	encoded, err := codec.Encode([]byte("key"), []byte("value"))
	require.NoError(t, err)
	encoded[0] ^= 0xFF

	_, err = codec.Decode(encoded)
	assert.True(t, errors.Is(err, ErrCorruption))
}

func TestRecordCodec_MalformedData(t *testing.T) {
	codec := NewRecordCodec()

	encoded, err := codec.Encode([]byte("key"), []byte("value"))
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "short header", data: encoded[:HeaderSize-1]},
		{name: "header only", data: encoded[:HeaderSize]},
		{name: "partial body", data: encoded[:len(encoded)-1]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Decode(tc.data)
			assert.True(t, errors.Is(err, ErrTruncated), "got %v", err)
		})
	}
}

func TestRecordCodec_DecodeFromBoundaries(t *testing.T) {
	codec := NewRecordCodec()

	first, err := codec.Encode([]byte("a"), []byte("1"))
	require.NoError(t, err)
	second, err := codec.Encode([]byte("b"), []byte("22"))
	require.NoError(t, err)

	t.Run("clean end of stream", func(t *testing.T) {
		src := bytes.NewReader(append(append([]byte(nil), first...), second...))

		r, err := codec.DecodeFrom(src)
		require.NoError(t, err)
		assert.Equal(t, "a", string(r.Key))

		r, err = codec.DecodeFrom(src)
		require.NoError(t, err)
		assert.Equal(t, "22", string(r.Value))

		_, err = codec.DecodeFrom(src)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("partial header", func(t *testing.T) {
		_, err := codec.DecodeFrom(bytes.NewReader(first[:5]))
		assert.True(t, errors.Is(err, ErrTruncated))
	})

	t.Run("partial body", func(t *testing.T) {
		_, err := codec.DecodeFrom(bytes.NewReader(second[:len(second)-1]))
		assert.True(t, errors.Is(err, ErrTruncated))
	})

	t.Run("huge declared length", func(t *testing.T) {
		header := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint32(header[4:], 0xFFFFFFFF)
		binary.LittleEndian.PutUint32(header[8:], 0xFFFFFFFF)

		_, err := codec.DecodeFrom(bytes.NewReader(append(header, 'x')))
		assert.True(t, errors.Is(err, ErrTruncated))
	})
}

func TestRecord_Size(t *testing.T) {
	r, err := NewRecord([]byte("key"), []byte("value"))
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+3+5, r.Size())
	assert.Equal(t, uint32(3), r.KeySize)
	assert.Equal(t, uint32(5), r.ValueSize)
}

func TestRecord_IsTombstone(t *testing.T) {
	live, err := NewRecord([]byte("k"), []byte("v"))
	require.NoError(t, err)
	assert.False(t, live.IsTombstone())

	dead, err := NewRecord([]byte("k"), nil)
	require.NoError(t, err)
	assert.True(t, dead.IsTombstone())
}

func TestChecksum_CoversKeyThenValue(t *testing.T) {
	assert.Equal(t, Checksum([]byte("ab"), []byte("c")), Checksum([]byte("a"), []byte("bc")))
	assert.NotEqual(t, Checksum([]byte("a"), []byte("b")), Checksum([]byte("b"), []byte("a")))
}
