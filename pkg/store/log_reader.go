package store

import (
	"bufio"
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
)

const scanBufferSize = 64 * 1024

// LogReader provides positioned and sequential access to records in a log file.
// It reads with pread, so point lookups may run concurrently with each other
// and with appends made through a LogWriter on the same path.
type LogReader struct {
	file   *os.File
	codec  *codec.RecordCodec
	config LogReaderConfig
}

// NewLogReader opens the data file read-only
func NewLogReader(config LogReaderConfig) (*LogReader, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}

	return &LogReader{
		file:   file,
		codec:  codec.NewRecordCodec(),
		config: config,
	}, nil
}

// ReadAt decodes the record that starts at offset
func (r *LogReader) ReadAt(offset int64) (*codec.Record, error) {
	if offset < 0 {
		return nil, errors.Newf("negative offset %d", offset)
	}

	record, err := r.codec.DecodeFrom(r.section(offset))
	if err == io.EOF {
		return nil, errors.Wrapf(codec.ErrTruncated, "no record at offset %d", offset)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "record at offset %d", offset)
	}
	return record, nil
}

// Scan returns an iterator over the records starting at offset from
func (r *LogReader) Scan(from int64) *LogScanner {
	return &LogScanner{
		reader: bufio.NewReaderSize(r.section(from), scanBufferSize),
		codec:  r.codec,
		next:   from,
	}
}

// Close closes the log reader
func (r *LogReader) Close() error {
	return r.file.Close()
}

func (r *LogReader) section(offset int64) *io.SectionReader {
	return io.NewSectionReader(r.file, offset, math.MaxInt64-offset)
}

// LogScanner streams records in log order. Next stops at a clean end of log;
// any other failure is reported by Err.
type LogScanner struct {
	reader *bufio.Reader
	codec  *codec.RecordCodec
	record *codec.Record
	offset int64 // start of the current record
	next   int64 // start of the following record
	err    error
}

// Next decodes the following record
func (s *LogScanner) Next() bool {
	if s.err != nil {
		return false
	}

	record, err := s.codec.DecodeFrom(s.reader)
	if err == io.EOF {
		s.record = nil
		return false
	}
	if err != nil {
		s.record = nil
		s.err = errors.Wrapf(err, "record at offset %d", s.next)
		return false
	}

	s.record = record
	s.offset = s.next
	s.next += int64(record.Size())
	return true
}

// Record returns the record decoded by the last call to Next
func (s *LogScanner) Record() *codec.Record {
	return s.record
}

// Offset returns where the current record starts
func (s *LogScanner) Offset() int64 {
	return s.offset
}

// End returns the offset just past the last decoded record
func (s *LogScanner) End() int64 {
	return s.next
}

// Err returns the error that stopped the scan, nil on a clean end of log
func (s *LogScanner) Err() error {
	return s.err
}
