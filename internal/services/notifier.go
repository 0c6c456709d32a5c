package services

import (
	"context"
	"fmt"
	"log/slog"

	"finman/internal/amqp"
	"finman/internal/core"
)

// TransactionPublisher sends transaction events to the broker. *amqp.Client implements it.
type TransactionPublisher interface {
	PublishTransactionGenerated(ctx context.Context, msg *amqp.TransactionGeneratedMessage) error
	Close() error
}

// TransactionNotifier publishes a transaction.generated event for every occurrence a pass records.
type TransactionNotifier struct {
	publisher TransactionPublisher
}

// NewTransactionNotifier wraps publisher. A nil publisher makes notifications a no-op
// that only logs at debug level.
func NewTransactionNotifier(publisher TransactionPublisher) *TransactionNotifier {
	return &TransactionNotifier{publisher: publisher}
}

// OccurrenceRecorded publishes the event for txn.
func (n *TransactionNotifier) OccurrenceRecorded(ctx context.Context, txn core.GeneratedTransaction) error {
	if n.publisher == nil {
		slog.DebugContext(ctx, "AMQP disabled, skipping transaction message",
			"transaction_id", txn.ID)
		return nil
	}

	if err := n.publisher.PublishTransactionGenerated(ctx, amqp.NewTransactionGeneratedMessage(txn)); err != nil {
		return fmt.Errorf("publish transaction %s: %w", txn.ID, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (n *TransactionNotifier) Close() error {
	if n.publisher == nil {
		return nil
	}
	if err := n.publisher.Close(); err != nil {
		return fmt.Errorf("close amqp publisher: %w", err)
	}
	return nil
}
