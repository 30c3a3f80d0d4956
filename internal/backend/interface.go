package backend

import (
	"context"

	"profitdash/internal/amqp"
	"profitdash/internal/products"
	"profitdash/internal/storage"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult holds everything the server needs to serve product data.
type BackendResult struct {
	// Products is where uploads land.
	Products products.Store
	// Repo keeps users and sessions; for the sql backends it is also Products.
	Repo *storage.Repository
	// Events is nil when AMQP is disabled or unreachable.
	Events *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite is used for the sqlite backend and for sessions of the memory backend.
	SQLiteDBPath string
	DatabaseURL  string

	// AMQP is optional.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
