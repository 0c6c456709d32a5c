package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finman/internal/amqp"
	"finman/internal/services"
	"finman/internal/storage"
	"finman/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store Backend
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		store, err = storage.NewPostgresRepository(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized PostgreSQL backend")
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	notifier := f.createNotifier(ctx, config)

	return &BackendResult{
		Backend:  store,
		Notifier: notifier,
		Cleanup: func() error {
			return errors.Join(notifier.Close(), store.Close())
		},
	}, nil
}

// createNotifier connects to AMQP when configured. A broker that cannot be reached
// downgrades to a no-op notifier; transactions are still recorded.
func (f *DefaultFactory) createNotifier(ctx context.Context, config Config) *services.TransactionNotifier {
	if config.AMQPURL == "" {
		f.logger.InfoContext(ctx, "AMQP disabled - generated transactions will not be published")
		return services.NewTransactionNotifier(nil)
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without publishing", "error", err)
		return services.NewTransactionNotifier(nil)
	}

	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return services.NewTransactionNotifier(client)
}
