// Package resp exposes a store over the Redis serialization protocol, so
// redis-cli and Redis client libraries can talk to it.
package resp

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ssargent/actionkv/pkg/store"
	"github.com/tidwall/match"
	"github.com/tidwall/redcon"
)

// Store is the subset of the store the protocol needs
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Insert(key, value []byte) error
	Delete(key []byte) error
	ListKeys(prefix []byte) ([]string, error)
	Flush() (*store.FlushResult, error)
	Stats() *store.StoreStats
}

// replyWriter is the part of redcon.Conn the command handlers write to
type replyWriter interface {
	WriteError(msg string)
	WriteString(str string)
	WriteBulk(bulk []byte)
	WriteBulkString(bulk string)
	WriteInt(num int)
	WriteArray(count int)
	WriteNull()
}

// Server dispatches RESP commands to a store
type Server struct {
	store  Store
	logger *log.Logger

	mutex sync.RWMutex
	addr  net.Addr
}

// NewServer creates a RESP front-end for kv
func NewServer(kv Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Server{store: kv, logger: logger}
}

// ListenAndServe accepts connections on addr until ctx is cancelled. ready,
// when non-nil, receives the bound address once the listener is up.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- net.Addr) error {
	srv := redcon.NewServer(addr, s.handle,
		func(conn redcon.Conn) bool {
			s.logger.Debug().Str("remote", conn.RemoteAddr()).Msg("resp client connected")
			return true
		},
		func(conn redcon.Conn, err error) {
			if err != nil {
				s.logger.Debug().Err(err).Str("remote", conn.RemoteAddr()).Msg("resp client closed")
			}
		},
	)

	signal := make(chan error, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenServeAndSignal(signal)
	}()

	if err := <-signal; err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	bound := srv.Addr()
	s.mutex.Lock()
	s.addr = bound
	s.mutex.Unlock()

	s.logger.Info().Str("addr", bound.String()).Msg("RESP listening")
	if ready != nil {
		ready <- bound
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	if err := srv.Close(); err != nil {
		return err
	}
	<-done
	s.logger.Info().Msg("RESP stopped")
	return nil
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	if s.execute(conn, cmd.Args) {
		_ = conn.Close()
	}
}

// execute runs one command and reports whether the connection should close
func (s *Server) execute(w replyWriter, args [][]byte) (quit bool) {
	if len(args) == 0 {
		w.WriteError("ERR empty command")
		return false
	}

	name := strings.ToLower(string(args[0]))
	switch name {
	case "ping":
		switch len(args) {
		case 1:
			w.WriteString("PONG")
		case 2:
			w.WriteBulk(args[1])
		default:
			wrongArity(w, name)
		}
	case "echo":
		if len(args) != 2 {
			wrongArity(w, name)
			return false
		}
		w.WriteBulk(args[1])
	case "quit":
		w.WriteString("OK")
		return true
	case "get":
		if len(args) != 2 {
			wrongArity(w, name)
			return false
		}
		s.get(w, args[1])
	case "set":
		if len(args) != 3 {
			wrongArity(w, name)
			return false
		}
		s.set(w, args[1], args[2])
	case "del":
		if len(args) < 2 {
			wrongArity(w, name)
			return false
		}
		s.del(w, args[1:])
	case "exists":
		if len(args) < 2 {
			wrongArity(w, name)
			return false
		}
		s.exists(w, args[1:])
	case "keys":
		if len(args) != 2 {
			wrongArity(w, name)
			return false
		}
		s.keys(w, string(args[1]))
	case "dbsize":
		w.WriteInt(s.store.Stats().Keys)
	case "save":
		if _, err := s.store.Flush(); err != nil {
			writeStoreError(w, err)
			return false
		}
		w.WriteString("OK")
	case "info":
		stats := s.store.Stats()
		w.WriteBulkString(fmt.Sprintf("# Keyspace\r\nkeys:%d\r\ndata_size:%d\r\nlive_bytes:%d\r\ndead_bytes:%d\r\n",
			stats.Keys, stats.DataSize, stats.LiveBytes, stats.DeadBytes))
	default:
		w.WriteError(fmt.Sprintf("ERR unknown command '%s'", string(args[0])))
	}
	return false
}

func (s *Server) get(w replyWriter, key []byte) {
	if string(key) == store.ReservedIndexKey {
		w.WriteNull()
		return
	}
	value, found, err := s.store.Get(key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !found {
		w.WriteNull()
		return
	}
	w.WriteBulk(value)
}

func (s *Server) set(w replyWriter, key, value []byte) {
	if string(key) == store.ReservedIndexKey {
		w.WriteError("ERR key is reserved")
		return
	}
	if err := s.store.Insert(key, value); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteString("OK")
}

func (s *Server) del(w replyWriter, keys [][]byte) {
	deleted := 0
	for _, key := range keys {
		if string(key) == store.ReservedIndexKey {
			continue
		}
		err := s.store.Delete(key)
		switch {
		case err == nil:
			deleted++
		case store.KindOf(err) == store.KindNotFound:
		default:
			writeStoreError(w, err)
			return
		}
	}
	w.WriteInt(deleted)
}

func (s *Server) exists(w replyWriter, keys [][]byte) {
	count := 0
	for _, key := range keys {
		if string(key) == store.ReservedIndexKey {
			continue
		}
		_, found, err := s.store.Get(key)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if found {
			count++
		}
	}
	w.WriteInt(count)
}

// keys narrows by the literal prefix before the first wildcard, then
// matches the glob against each candidate
func (s *Server) keys(w replyWriter, pattern string) {
	prefix := pattern
	if i := strings.IndexAny(pattern, "*?[\\"); i >= 0 {
		prefix = pattern[:i]
	}

	candidates, err := s.store.ListKeys([]byte(prefix))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	matched := candidates[:0]
	for _, key := range candidates {
		if match.Match(key, pattern) {
			matched = append(matched, key)
		}
	}

	w.WriteArray(len(matched))
	for _, key := range matched {
		w.WriteBulkString(key)
	}
}

func wrongArity(w replyWriter, name string) {
	w.WriteError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", name))
}

func writeStoreError(w replyWriter, err error) {
	w.WriteError("ERR " + err.Error())
}

// Addr returns the bound address once ListenAndServe is running
func (s *Server) Addr() net.Addr {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.addr
}
