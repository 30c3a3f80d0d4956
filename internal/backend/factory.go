// Package backend wires the product store, the SQL repository and the
// optional event publisher from configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"profitdash/internal/amqp"
	"profitdash/internal/log"
	"profitdash/internal/products"
	productsmem "profitdash/internal/products/memory"
	"profitdash/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := storage.NewRepository(ctx, config.Dialect(), config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", config.Dialect(), err)
	}

	var store products.Store = repo
	if config.Type == MemoryBackend {
		store = productsmem.New()
	}

	events := f.connectEvents(config)

	f.logger.Info("Initialized backend",
		"type", config.Type,
		"dialect", config.Dialect(),
		"amqp_enabled", events != nil)

	return &BackendResult{
		Products: store,
		Repo:     repo,
		Events:   events,
		Cleanup: func() error {
			var errs []error
			if events != nil {
				errs = append(errs, events.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

// connectEvents dials AMQP when configured. An unreachable broker disables
// events instead of failing startup.
func (f *DefaultFactory) connectEvents(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without upload events", log.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
