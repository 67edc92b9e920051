package storage

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/phuslu/log"
)

// Source is what Export reads from
type Source interface {
	Get(key []byte) ([]byte, bool, error)
	ListKeys(prefix []byte) ([]string, error)
}

// ExportResult summarises an export
type ExportResult struct {
	Keys     int           `json:"keys"`
	Bytes    int64         `json:"bytes"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Export copies every live key under prefix from src into sink and flushes
// it. Keys deleted while the export runs are skipped. The sink stays open.
func Export(src Source, sink Sink, prefix []byte, logger *log.Logger) (*ExportResult, error) {
	start := time.Now()
	result := &ExportResult{}

	keys, err := src.ListKeys(prefix)
	if err != nil {
		return nil, errors.Wrap(err, "list keys")
	}

	for _, key := range keys {
		value, found, err := src.Get([]byte(key))
		if err != nil {
			return result, errors.Wrapf(err, "read %q", key)
		}
		if !found {
			result.Skipped++
			continue
		}
		if err := sink.Put([]byte(key), value); err != nil {
			return result, errors.Wrapf(err, "write %q", key)
		}
		result.Keys++
		result.Bytes += int64(len(key) + len(value))
	}

	if err := sink.Flush(); err != nil {
		return result, err
	}
	result.Duration = time.Since(start)

	if logger != nil {
		logger.Info().Int("keys", result.Keys).Int64("bytes", result.Bytes).
			Int("skipped", result.Skipped).Dur("duration", result.Duration).Msg("export finished")
	}
	return result, nil
}
