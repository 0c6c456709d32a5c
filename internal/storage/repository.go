package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finman/internal/core"
)

var (
	// ErrTemplateAdvanced is returned by RecordOccurrence when the template no longer
	// sits on the occurrence being recorded, typically because another pass got there first.
	ErrTemplateAdvanced = errors.New("template already advanced past occurrence")

	// ErrOccurrenceExists is returned by RecordOccurrence when a transaction for the
	// template is already dated on the occurrence. The template keeps failing with it
	// until its next run date is moved past the recorded occurrence.
	ErrOccurrenceExists = errors.New("occurrence already recorded")

	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
)

const templateColumns = `id, user_id, category_id, amount, type, description, "interval", next_run_date, active`

const (
	selectDueTemplatesSQL = `SELECT ` + templateColumns + `
		FROM recurring_transactions
		WHERE active = TRUE AND next_run_date <= ?
		ORDER BY next_run_date, id`

	selectTemplateSQL = `SELECT ` + templateColumns + `
		FROM recurring_transactions
		WHERE id = ?`

	insertTemplateSQL = `INSERT INTO recurring_transactions
		(id, user_id, category_id, amount, type, description, "interval", next_run_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	advanceTemplateSQL = `UPDATE recurring_transactions
		SET next_run_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND next_run_date = ? AND active = TRUE`

	insertTransactionSQL = `INSERT INTO transactions
		(id, user_id, category_id, amount, type, description, date, recurring_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectTransactionsSQL = `SELECT id, recurring_id, user_id, category_id, amount, type, description, date
		FROM transactions
		WHERE recurring_id = ?
		ORDER BY date, id`
)

// SQLRepository stores recurring templates and generated transactions in SQLite or PostgreSQL.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteRepository opens (creating if needed) the SQLite database at dbPath and migrates it.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialize at the pool instead of retrying SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return newRepository(db, SQLite, dsn)
}

// NewPostgresRepository connects to the PostgreSQL database at connStr and migrates it.
func NewPostgresRepository(connStr string) (*SQLRepository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newRepository(db, Postgres, connStr)
}

func newRepository(db *sql.DB, dialect Dialect, dsn string) (*SQLRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLRepository{db: db, dialect: dialect}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FetchDueTemplates returns every active template whose next run date is on or before asOf.
// The result comes from a single statement, so it is one consistent snapshot.
func (r *SQLRepository) FetchDueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(selectDueTemplatesSQL), asOf)
	if err != nil {
		return nil, fmt.Errorf("query due templates: %w", err)
	}
	defer rows.Close()

	var templates []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due templates: %w", err)
	}

	return templates, nil
}

// RecordOccurrence inserts the transaction for occurrence and moves the template to next
// in one database transaction. Either both writes land or neither does.
func (r *SQLRepository) RecordOccurrence(ctx context.Context, t core.RecurringTemplate, occurrence, next core.Date) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.dialect.rebind(advanceTemplateSQL), next, t.ID, occurrence)
	if err != nil {
		return "", fmt.Errorf("advance template %s: %w", t.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("advance template %s: %w", t.ID, err)
	}
	if affected == 0 {
		return "", fmt.Errorf("advance template %s from %s: %w", t.ID, occurrence, ErrTemplateAdvanced)
	}

	txn := t.Materialize(occurrence)
	txn.ID = uuid.NewString()
	_, err = tx.ExecContext(ctx, r.dialect.rebind(insertTransactionSQL),
		txn.ID, txn.UserID, txn.CategoryID, txn.Amount, string(txn.Type), txn.Description, txn.Date, txn.RecurringID)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("insert transaction for template %s on %s: %w", t.ID, occurrence, ErrOccurrenceExists)
	}
	if err != nil {
		return "", fmt.Errorf("insert transaction for template %s: %w", t.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit occurrence for template %s: %w", t.ID, err)
	}

	slog.DebugContext(ctx, "Occurrence recorded",
		"recurring_id", t.ID,
		"transaction_id", txn.ID,
		"occurrence", occurrence.String(),
		"next_run_date", next.String())

	return txn.ID, nil
}

// CreateTemplate stores a new template. An empty ID is replaced by a random UUID.
// Template maintenance belongs to the CRUD layer; this exists for seeding and tests.
func (r *SQLRepository) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	if err := t.Validate(); err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("validate template: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, r.dialect.rebind(insertTemplateSQL),
		t.ID, t.UserID, t.CategoryID, t.Amount, string(t.Type), t.Description, string(t.Interval), t.NextRunDate, t.Active)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("insert template: %w", err)
	}

	return t, nil
}

// GetTemplate loads a template by ID.
func (r *SQLRepository) GetTemplate(ctx context.Context, id string) (core.RecurringTemplate, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(selectTemplateSQL), id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTemplate{}, fmt.Errorf("get template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get template %s: %w", id, err)
	}
	return t, nil
}

// ListTransactions returns the transactions generated from a template, oldest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, recurringID string) ([]core.GeneratedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(selectTransactionsSQL), recurringID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.GeneratedTransaction
	for rows.Next() {
		var (
			txn     core.GeneratedTransaction
			source  sql.NullString
			txnType string
		)
		if err := rows.Scan(&txn.ID, &source, &txn.UserID, &txn.CategoryID, &txn.Amount,
			&txnType, &txn.Description, &txn.Date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.RecurringID = source.String
		txn.Type = core.TransactionType(txnType)
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return txns, nil
}

// isUniqueViolation reports whether err is a unique constraint failure from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s rowScanner) (core.RecurringTemplate, error) {
	var (
		t        core.RecurringTemplate
		txnType  string
		interval string
	)
	err := s.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Amount, &txnType, &t.Description,
		&interval, &t.NextRunDate, &t.Active)
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	t.Type = core.TransactionType(txnType)
	t.Interval = core.Interval(interval)
	return t, nil
}
