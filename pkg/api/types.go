package api

import (
	"github.com/ssargent/actionkv/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind   string
	Port   int
	APIKey string
}

// IKVStore is the subset of the store the API serves
type IKVStore interface {
	Get(key []byte) ([]byte, bool, error)
	Insert(key, value []byte) error
	Update(key, value []byte) error
	Delete(key []byte) error
	ListKeys(prefix []byte) ([]string, error)
	Flush() (*store.FlushResult, error)
	Stats() *store.StoreStats
}

var _ IKVStore = (*store.KVStore)(nil)
