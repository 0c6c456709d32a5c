package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"finman/internal/core"
)

// TransactionGeneratedMessage announces a ledger transaction created from a recurring template.
type TransactionGeneratedMessage struct {
	TransactionID string          `json:"transaction_id"`
	RecurringID   string          `json:"recurring_id"`
	UserID        string          `json:"user_id"`
	CategoryID    *string         `json:"category_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Date          string          `json:"date"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewTransactionGeneratedMessage(txn core.GeneratedTransaction) *TransactionGeneratedMessage {
	return &TransactionGeneratedMessage{
		TransactionID: txn.ID,
		RecurringID:   txn.RecurringID,
		UserID:        txn.UserID,
		CategoryID:    txn.CategoryID,
		Amount:        txn.Amount,
		Type:          string(txn.Type),
		Date:          txn.Date.String(),
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionGeneratedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionGeneratedMessageFromJSON(data []byte) (*TransactionGeneratedMessage, error) {
	var msg TransactionGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
