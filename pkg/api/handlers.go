package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phuslu/log"
	"github.com/ssargent/actionkv/pkg/store"
)

// maxValueSize caps PUT bodies
const maxValueSize = 32 << 20

// Server holds the API server state
type Server struct {
	store   IKVStore
	config  ServerConfig
	metrics *Metrics
	logger  *log.Logger
}

// NewServer creates a new API server
func NewServer(kv IKVStore, config ServerConfig, metrics *Metrics, logger *log.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &Server{
		store:   kv,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handlePut godoc
//
//	@Summary		Put a key-value pair
//	@Description	Store the raw request body under key. An empty body deletes the key on read.
//	@Tags			kv
//	@Accept			octet-stream
//	@Produce		json
//	@Param			key		path		string	true	"Key"
//	@Param			body	body		[]byte	true	"Value"
//	@Success		200		{object}	map[string]string
//	@Failure		400		{object}	map[string]string
//	@Failure		413		{object}	map[string]string
//	@Failure		500		{object}	map[string]string
//	@Security		ApiKeyAuth
//	@Router			/kv/{key} [put]
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, ok := s.keyParam(w, r, "put", start)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		s.metrics.RecordDBOperation("put", false, time.Since(start))
		sendError(w, "Failed to read request body", http.StatusRequestEntityTooLarge)
		return
	}

	if err := s.store.Insert(key, body); err != nil {
		s.metrics.RecordDBOperation("put", false, time.Since(start))
		s.logger.Error().Err(err).Bytes("key", key).Msg("put failed")
		sendError(w, fmt.Sprintf("Failed to put key-value: %v", err), statusFor(err))
		return
	}

	s.metrics.RecordDBOperation("put", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "Key-value pair stored successfully"})
}

// handleGet godoc
//
//	@Summary		Get a value by key
//	@Tags			kv
//	@Produce		octet-stream
//	@Param			key	path		string	true	"Key"
//	@Success		200	{string}	byte
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/kv/{key} [get]
//	@Security		ApiKeyAuth
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, ok := s.keyParam(w, r, "get", start)
	if !ok {
		return
	}

	value, found, err := s.store.Get(key)
	if err != nil {
		s.metrics.RecordDBOperation("get", false, time.Since(start))
		s.logger.Error().Err(err).Bytes("key", key).Msg("get failed")
		sendError(w, fmt.Sprintf("Failed to get value: %v", err), statusFor(err))
		return
	}
	s.metrics.RecordDBOperation("get", true, time.Since(start))

	if !found {
		sendError(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

// handleDelete godoc
//
//	@Summary		Delete a key
//	@Tags			kv
//	@Produce		json
//	@Param			key	path		string	true	"Key"
//	@Success		200	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Router			/kv/{key} [delete]
//	@Security		ApiKeyAuth
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, ok := s.keyParam(w, r, "delete", start)
	if !ok {
		return
	}

	if err := s.store.Delete(key); err != nil {
		s.metrics.RecordDBOperation("delete", false, time.Since(start))
		if store.KindOf(err) == store.KindNotFound {
			sendError(w, "Key not found", http.StatusNotFound)
			return
		}
		sendError(w, fmt.Sprintf("Failed to delete key: %v", err), statusFor(err))
		return
	}

	s.metrics.RecordDBOperation("delete", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "Key deleted successfully"})
}

// handleListKeys godoc
//
//	@Summary		List keys
//	@Description	List all keys with optional prefix
//	@Tags			kv
//	@Produce		json
//	@Param			prefix	query		string	false	"Key prefix"
//	@Success		200	{object}	map[string]interface{}
//	@Router			/kv [get]
//	@Security		ApiKeyAuth
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	prefix := r.URL.Query().Get("prefix")

	keys, err := s.store.ListKeys([]byte(prefix))
	if err != nil {
		s.metrics.RecordDBOperation("list", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to list keys: %v", err), statusFor(err))
		return
	}

	s.metrics.RecordDBOperation("list", true, time.Since(start))
	sendSuccess(w, map[string]interface{}{"keys": keys, "count": len(keys)})
}

// handleStats godoc
//
//	@Summary		Store statistics
//	@Tags			diagnostics
//	@Produce		json
//	@Success		200	{object}	store.StoreStats
//	@Router			/stats [get]
//	@Security		ApiKeyAuth
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	s.metrics.UpdateDBStats(stats.Keys, stats.DataSize, stats.DeadBytes)
	sendSuccess(w, stats)
}

// handleFlush godoc
//
//	@Summary		Persist the index cache
//	@Tags			diagnostics
//	@Produce		json
//	@Success		200	{object}	store.FlushResult
//	@Failure		409	{object}	map[string]string
//	@Router			/cache/flush [post]
//	@Security		ApiKeyAuth
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, err := s.store.Flush()
	if err != nil {
		s.metrics.RecordDBOperation("flush", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to flush index cache: %v", err), statusFor(err))
		return
	}

	s.metrics.RecordDBOperation("flush", true, time.Since(start))
	sendSuccess(w, result)
}

// keyParam extracts and unescapes the {key} URL parameter, rejecting the
// empty key and the reserved index cache key
func (s *Server) keyParam(w http.ResponseWriter, r *http.Request, op string, start time.Time) ([]byte, bool) {
	raw := chi.URLParam(r, "key")
	key, err := url.PathUnescape(raw)
	switch {
	case raw == "":
		sendError(w, "Key is required", http.StatusBadRequest)
	case err != nil:
		sendError(w, "Invalid key encoding", http.StatusBadRequest)
	case key == store.ReservedIndexKey:
		sendError(w, "Key is reserved", http.StatusBadRequest)
	default:
		return []byte(key), true
	}
	s.metrics.RecordDBOperation(op, false, time.Since(start))
	return nil, false
}

// statusFor maps store error kinds onto HTTP status codes
func statusFor(err error) int {
	switch store.KindOf(err) {
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case store.KindNotLoaded:
		return http.StatusConflict
	case store.KindClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// runStatsUpdater refreshes the store gauges until ctx is done
func (s *Server) runStatsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.store.Stats()
			s.metrics.UpdateDBStats(stats.Keys, stats.DataSize, stats.DeadBytes)
		}
	}
}
