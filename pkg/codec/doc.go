// Package codec provides record serialization and deserialization for ActionKV.
//
// Every key-value pair in the data file is framed as one record:
//
//	[CRC32(4)][KeySize(4)][ValueSize(4)][Key][Value]
//
// All integers are little-endian. The checksum is the IEEE CRC32 of the key
// bytes followed by the value bytes; the length fields and the checksum itself
// are not covered. A record with an empty value is a tombstone.
//
// # Decoding
//
// Decode works on a complete in-memory record. DecodeFrom reads one record from
// a stream and distinguishes three outcomes the log replay depends on:
//
//   - io.EOF: the stream ended exactly at a record boundary (clean end of log)
//   - ErrTruncated: a header or body was cut short, usually a crash mid-append
//   - ErrCorruption: the record is well framed but its checksum does not match
//
// Both error sentinels are wrapped with detail; test for them with errors.Is.
//
// # Thread Safety
//
// RecordCodec holds no state and is safe for concurrent use.
package codec
