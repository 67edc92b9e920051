package store

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/actionkv/pkg/codec"
)

// ErrorKind classifies every failure the store reports
type ErrorKind int

const (
	KindIO               ErrorKind = iota + 1 // open/read/write failure at the OS boundary
	KindTruncated                             // record extends past the end of the log
	KindCorruption                            // checksum or key mismatch
	KindNotFound                              // delete of a key that is not indexed
	KindCacheDeserialize                      // index cache unreadable, full replay used instead
	KindTooLarge                              // key or value length exceeds 32 bits
	KindClosed                                // store is not open
	KindNotLoaded                             // operation needs a loaded index
	KindLocked                                // another process holds the data file
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "i/o error"
	case KindTruncated:
		return "truncated record"
	case KindCorruption:
		return "data corruption detected"
	case KindNotFound:
		return "key not found"
	case KindCacheDeserialize:
		return "index cache unreadable"
	case KindTooLarge:
		return "record too large"
	case KindClosed:
		return "store is not open"
	case KindNotLoaded:
		return "store is not loaded"
	case KindLocked:
		return "data file is locked by another process"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Sentinels for errors.Is; any KVError of the same kind matches.
var (
	ErrIO               = &KVError{Kind: KindIO}
	ErrTruncated        = &KVError{Kind: KindTruncated}
	ErrCorruption       = &KVError{Kind: KindCorruption}
	ErrKeyNotFound      = &KVError{Kind: KindNotFound}
	ErrCacheDeserialize = &KVError{Kind: KindCacheDeserialize}
	ErrTooLarge         = &KVError{Kind: KindTooLarge}
	ErrStoreClosed      = &KVError{Kind: KindClosed}
	ErrNotLoaded        = &KVError{Kind: KindNotLoaded}
	ErrLocked           = &KVError{Kind: KindLocked}
)

// KVError represents a key-value store error
type KVError struct {
	Kind ErrorKind
	Op   string // store operation, e.g. "get"
	Key  []byte // key involved, if any
	Err  error  // underlying cause
}

func (e *KVError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Key != nil {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KVError) Unwrap() error {
	return e.Err
}

// Is matches on Kind only, so callers can compare against the sentinels.
func (e *KVError) Is(target error) bool {
	t, ok := target.(*KVError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first KVError in err's chain, or 0
func KindOf(err error) ErrorKind {
	var kvErr *KVError
	if errors.As(err, &kvErr) {
		return kvErr.Kind
	}
	return 0
}

func newError(kind ErrorKind, op string, key []byte, cause error) *KVError {
	var k []byte
	if key != nil {
		k = append([]byte{}, key...)
	}
	return &KVError{Kind: kind, Op: op, Key: k, Err: cause}
}

// classify maps codec and OS failures onto store error kinds
func classify(op string, key []byte, err error) error {
	if err == nil {
		return nil
	}
	var kvErr *KVError
	if errors.As(err, &kvErr) {
		return err
	}

	kind := KindIO
	switch {
	case errors.Is(err, codec.ErrCorruption):
		kind = KindCorruption
	case errors.Is(err, codec.ErrTruncated), errors.Is(err, io.ErrUnexpectedEOF):
		kind = KindTruncated
	case errors.Is(err, codec.ErrRecordTooLarge):
		kind = KindTooLarge
	}
	return newError(kind, op, key, err)
}
