package backend

import (
	"context"
	"time"

	"walletwise/internal/amqp"
	"walletwise/internal/bills"
	"walletwise/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the outbound dependencies of the web app. Activities
// and Publisher are nil when their feature is disabled.
type BackendResult struct {
	Bills      bills.Backend
	Activities *storage.SQLiteRepository
	Publisher  *amqp.Client
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// api
	APIBaseURL string
	APITimeout time.Duration

	// memory
	DataDirectory string

	// activity log, optional
	ActivityDBPath string
	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string
}

// BackendType selects where bills are read from and written to.
type BackendType string

const (
	APIBackend    BackendType = "api"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case APIBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
