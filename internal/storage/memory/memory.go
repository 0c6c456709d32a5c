package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"finman/internal/core"
	"finman/internal/storage"
)

// Store keeps templates and generated transactions in process memory. It honours the
// same contract as storage.SQLRepository, including the atomic advance guard.
type Store struct {
	mu        sync.Mutex
	templates map[string]core.RecurringTemplate
	txns      []core.GeneratedTransaction
}

func New(templates ...core.RecurringTemplate) *Store {
	s := &Store{templates: make(map[string]core.RecurringTemplate, len(templates))}
	for _, t := range templates {
		s.templates[t.ID] = t
	}
	return s
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// FetchDueTemplates returns copies of active templates due on or before asOf.
func (s *Store) FetchDueTemplates(_ context.Context, asOf core.Date) ([]core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []core.RecurringTemplate
	for _, t := range s.templates {
		if t.Active && !t.NextRunDate.After(asOf) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRunDate.Equal(due[j].NextRunDate) {
			return due[i].NextRunDate.Before(due[j].NextRunDate)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

// RecordOccurrence appends the transaction and advances the template under one lock.
func (s *Store) RecordOccurrence(_ context.Context, t core.RecurringTemplate, occurrence, next core.Date) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.templates[t.ID]
	if !ok {
		return "", fmt.Errorf("advance template %s: %w", t.ID, storage.ErrNotFound)
	}
	if !stored.Active || !stored.NextRunDate.Equal(occurrence) {
		return "", fmt.Errorf("advance template %s from %s: %w", t.ID, occurrence, storage.ErrTemplateAdvanced)
	}

	for _, existing := range s.txns {
		if existing.RecurringID == t.ID && existing.Date.Equal(occurrence) {
			return "", fmt.Errorf("insert transaction for template %s on %s: %w", t.ID, occurrence, storage.ErrOccurrenceExists)
		}
	}

	txn := t.Materialize(occurrence)
	txn.ID = uuid.NewString()
	stored.NextRunDate = next
	s.templates[t.ID] = stored
	s.txns = append(s.txns, txn)

	return txn.ID, nil
}

// CreateTemplate validates and stores t, assigning an ID when empty.
func (s *Store) CreateTemplate(_ context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	if err := t.Validate(); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("validate template: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (core.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return core.RecurringTemplate{}, fmt.Errorf("get template %s: %w", id, storage.ErrNotFound)
	}
	return t, nil
}

func (s *Store) ListTransactions(_ context.Context, recurringID string) ([]core.GeneratedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.GeneratedTransaction
	for _, txn := range s.txns {
		if txn.RecurringID == recurringID {
			out = append(out, txn)
		}
	}
	return out, nil
}

// TransactionCount returns the number of generated transactions across all templates.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}
