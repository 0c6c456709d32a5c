package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	// RecurringTemplate describes a transaction that should be generated on a schedule.
	// Interval is kept as stored; it is only parsed when the template is processed,
	// so a template with an unknown interval can still be read and reported.
	RecurringTemplate struct {
		ID          string
		UserID      string
		CategoryID  *string
		Amount      decimal.Decimal
		Type        TransactionType
		Description string
		Interval    Interval
		NextRunDate Date
		Active      bool
	}

	// GeneratedTransaction is a ledger row materialized from one occurrence of a template.
	GeneratedTransaction struct {
		ID          string
		RecurringID string
		UserID      string
		CategoryID  *string
		Amount      decimal.Decimal
		Type        TransactionType
		Description string
		Date        Date
	}
)

var (
	ErrEmptyUserID     = errors.New("empty user id")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyNextRun    = errors.New("next run date cannot be zero")
	ErrDescriptionSize = errors.New("description too long (max 255 characters)")
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (t RecurringTemplate) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUserID
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if len(t.Description) > 255 {
		return ErrDescriptionSize
	}
	if t.NextRunDate.IsZero() {
		return ErrEmptyNextRun
	}
	if _, err := ParseInterval(string(t.Interval)); err != nil {
		return err
	}
	return nil
}

// Materialize builds the ledger transaction for the occurrence dated on.
// Owner, category, amount, type and description are copied verbatim.
func (t RecurringTemplate) Materialize(on Date) GeneratedTransaction {
	return GeneratedTransaction{
		RecurringID: t.ID,
		UserID:      t.UserID,
		CategoryID:  t.CategoryID,
		Amount:      t.Amount,
		Type:        t.Type,
		Description: t.Description,
		Date:        on,
	}
}
