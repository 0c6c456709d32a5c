package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"finman/internal/amqp"
	"finman/internal/core"
)

type fakePublisher struct {
	msgs   []*amqp.TransactionGeneratedMessage
	err    error
	closed bool
}

func (p *fakePublisher) PublishTransactionGenerated(_ context.Context, msg *amqp.TransactionGeneratedMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func generated() core.GeneratedTransaction {
	return core.GeneratedTransaction{
		ID:          "txn-1",
		RecurringID: "rec-1",
		UserID:      "user-1",
		Amount:      decimal.RequireFromString("12.50"),
		Type:        core.Income,
		Date:        core.NewDate(2024, 1, 1),
	}
}

func TestTransactionNotifier_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewTransactionNotifier(pub)

	if err := n.OccurrenceRecorded(context.Background(), generated()); err != nil {
		t.Fatalf("OccurrenceRecorded() error = %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.TransactionID != "txn-1" || msg.RecurringID != "rec-1" || msg.Date != "2024-01-01" || msg.Type != "income" {
		t.Errorf("message = %+v", msg)
	}

	if err := n.Close(); err != nil || !pub.closed {
		t.Errorf("Close() error = %v, closed = %v", err, pub.closed)
	}
}

func TestTransactionNotifier_WrapsPublishError(t *testing.T) {
	cause := errors.New("circuit breaker is open")
	n := NewTransactionNotifier(&fakePublisher{err: cause})

	err := n.OccurrenceRecorded(context.Background(), generated())
	if !errors.Is(err, cause) {
		t.Errorf("OccurrenceRecorded() error = %v, want wrapped %v", err, cause)
	}
}

func TestTransactionNotifier_NilPublisher(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	n := NewTransactionNotifier(nil)

	if err := n.OccurrenceRecorded(context.Background(), generated()); err != nil {
		t.Errorf("OccurrenceRecorded() error = %v, want nil", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
	if buf.Len() != 0 {
		t.Errorf("disabled notifier logged at info level: %s", buf.String())
	}
}
