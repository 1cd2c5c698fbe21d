package backend

import (
	"context"
	"errors"
	"fmt"

	"walletwise/internal/amqp"
	"walletwise/internal/bills"
	"walletwise/internal/bills/api"
	"walletwise/internal/bills/memory"
	applog "walletwise/internal/log"
	"walletwise/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger   *applog.Logger
	observer api.Observer
}

// NewFactory creates a new backend factory. observer may be nil.
func NewFactory(logger *applog.Logger, observer api.Observer) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{
		logger:   logger.WithComponent(applog.ComponentBackend),
		observer: observer,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		billStore bills.Backend
		err       error
	)
	switch config.Type {
	case APIBackend:
		billStore, err = f.createAPIBackend(config)
	case MemoryBackend:
		billStore, err = f.createMemoryBackend(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Bills: billStore}
	if err := f.attachActivityLog(ctx, config, result); err != nil {
		return nil, err
	}
	result.Cleanup = result.close
	return result, nil
}

func (f *DefaultFactory) createAPIBackend(config Config) (bills.Backend, error) {
	opts := []api.Option{api.WithLogger(f.logger)}
	if f.observer != nil {
		opts = append(opts, api.WithObserver(f.observer))
	}
	client, err := api.New(config.APIBaseURL, config.APITimeout, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bill API client: %w", err)
	}
	f.logger.Info("Initialized bill API backend",
		"base_url", config.APIBaseURL,
		"timeout", config.APITimeout.String())
	return client, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (bills.Backend, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed data: %w", err)
	}
	f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	return store, nil
}

// attachActivityLog opens the activity database and, when configured, the
// AMQP publisher. A broker that is down only disables publishing.
func (f *DefaultFactory) attachActivityLog(_ context.Context, config Config, result *BackendResult) error {
	if config.ActivityDBPath == "" {
		f.logger.Info("Activity log disabled")
		return nil
	}

	repo, err := storage.NewSQLiteRepository(config.ActivityDBPath, f.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize activity log: %w", err)
	}
	result.Activities = repo

	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without sync messages", applog.FieldError, err)
		return nil
	}
	result.Publisher = client
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return nil
}

func (r *BackendResult) close() error {
	var errs []error
	if r.Publisher != nil {
		if err := r.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if r.Activities != nil {
		if err := r.Activities.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
