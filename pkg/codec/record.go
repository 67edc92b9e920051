package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"

	"github.com/cockroachdb/errors"
)

// HeaderSize is the fixed prefix of every record: CRC32(4) + KeySize(4) + ValueSize(4)
const HeaderSize = 12

var (
	// ErrTruncated is returned when fewer bytes are available than the header declares
	ErrTruncated = errors.New("truncated record")
	// ErrCorruption is returned when the stored checksum disagrees with the payload
	ErrCorruption = errors.New("record checksum mismatch")
	// ErrRecordTooLarge is returned when a key or value length does not fit in 32 bits
	ErrRecordTooLarge = errors.New("record too large")
)

// Record represents a key-value record as stored in the log
type Record struct {
	CRC32     uint32 // CRC32 checksum over Key||Value
	KeySize   uint32 // Size of the key in bytes
	ValueSize uint32 // Size of the value in bytes
	Key       []byte // Key data
	Value     []byte // Value data
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes a key-value pair into a binary record format
// Format: [CRC32(4)][KeySize(4)][ValueSize(4)][Key][Value]
func (c *RecordCodec) Encode(key, value []byte) ([]byte, error) {
	r, err := NewRecord(key, value)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, r.Size())

	binary.LittleEndian.PutUint32(buf[0:], r.CRC32)
	binary.LittleEndian.PutUint32(buf[4:], r.KeySize)
	binary.LittleEndian.PutUint32(buf[8:], r.ValueSize)
	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+int(r.KeySize):], r.Value)

	return buf, nil
}

// Decode deserializes one complete binary record and verifies its checksum.
// Key and Value alias data.
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrapf(ErrTruncated, "header needs %d bytes, have %d", HeaderSize, len(data))
	}

	r := decodeHeader(data[:HeaderSize])
	total := uint64(HeaderSize) + uint64(r.KeySize) + uint64(r.ValueSize)
	if uint64(len(data)) < total {
		return nil, errors.Wrapf(ErrTruncated, "record needs %d bytes, have %d", total, len(data))
	}

	keyEnd := HeaderSize + int(r.KeySize)
	r.Key = data[HeaderSize:keyEnd]
	r.Value = data[keyEnd:int(total)]

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// DecodeFrom reads exactly one record from src.
//
// io.EOF is returned unwrapped when src is exhausted at a record boundary,
// which callers treat as a clean end of log. A partial header or body yields
// ErrTruncated. The body is copied incrementally, so a damaged length field
// costs at most the bytes actually present.
func (c *RecordCodec) DecodeFrom(src io.Reader) (*Record, error) {
	var header [HeaderSize]byte
	n, err := io.ReadFull(src, header[:])
	switch {
	case err == io.EOF && n == 0:
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		return nil, errors.Wrapf(ErrTruncated, "header has %d of %d bytes", n, HeaderSize)
	case err != nil:
		return nil, err
	}

	r := decodeHeader(header[:])
	want := int64(r.KeySize) + int64(r.ValueSize)

	var body bytes.Buffer
	copied, err := io.CopyN(&body, src, want)
	if err != nil {
		if err == io.EOF {
			return nil, errors.Wrapf(ErrTruncated, "body has %d of %d bytes", copied, want)
		}
		return nil, err
	}

	payload := body.Bytes()
	r.Key = payload[:r.KeySize]
	r.Value = payload[r.KeySize:]

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the integrity of a record using CRC32
func (r *Record) Validate() error {
	if sum := Checksum(r.Key, r.Value); r.CRC32 != sum {
		return errors.Wrapf(ErrCorruption, "crc32 %08x != %08x", sum, r.CRC32)
	}
	return nil
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int {
	return HeaderSize + len(r.Key) + len(r.Value)
}

// IsTombstone reports whether the record marks its key as deleted
func (r *Record) IsTombstone() bool {
	return len(r.Value) == 0
}

// NewRecord creates a record with its checksum filled in
func NewRecord(key, value []byte) (*Record, error) {
	if uint64(len(key)) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrRecordTooLarge, "key is %d bytes", len(key))
	}
	if uint64(len(value)) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrRecordTooLarge, "value is %d bytes", len(value))
	}
	return &Record{
		CRC32:     Checksum(key, value),
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Key:       key,
		Value:     value,
	}, nil
}

// Checksum computes the IEEE CRC32 of key followed by value
func Checksum(key, value []byte) uint32 {
	crc := crc32.NewIEEE()
	_, _ = crc.Write(key)
	_, _ = crc.Write(value)
	return crc.Sum32()
}

func decodeHeader(header []byte) *Record {
	return &Record{
		CRC32:     binary.LittleEndian.Uint32(header[0:4]),
		KeySize:   binary.LittleEndian.Uint32(header[4:8]),
		ValueSize: binary.LittleEndian.Uint32(header[8:12]),
	}
}
