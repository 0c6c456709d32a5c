package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"finman/internal/core"
	"finman/internal/storage"
)

// ErrStoreRead marks a pass that could not read the due templates and was aborted.
var ErrStoreRead = errors.New("fetch due templates")

var passTracer = otel.Tracer("finman/recurring")

type passMetrics struct {
	duration metric.Float64Histogram
	created  metric.Int64Counter
	failed   metric.Int64Counter
}

// newPassMetrics builds the pass instruments. An instrument the meter cannot create
// is replaced by a no-op so recording never fails.
func newPassMetrics(meter metric.Meter) passMetrics {
	var errs []error

	duration, err := meter.Float64Histogram("recurring.pass.duration",
		metric.WithDescription("Recurring pass duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		errs = append(errs, err)
		duration = noop.Float64Histogram{}
	}
	created, err := meter.Int64Counter("recurring.occurrences.generated",
		metric.WithDescription("Transactions generated from recurring templates"))
	if err != nil {
		errs = append(errs, err)
		created = noop.Int64Counter{}
	}
	failed, err := meter.Int64Counter("recurring.occurrences.failed",
		metric.WithDescription("Recurring templates that failed in a pass, by kind"))
	if err != nil {
		errs = append(errs, err)
		failed = noop.Int64Counter{}
	}

	if len(errs) > 0 {
		slog.Warn("Failed to create recurring metrics instruments", "error", errors.Join(errs...))
	}
	return passMetrics{duration: duration, created: created, failed: failed}
}

// RecurrenceStore is the durable store the processor reads templates from and writes occurrences to.
type RecurrenceStore interface {
	// FetchDueTemplates returns active templates with a next run date on or before asOf.
	FetchDueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error)
	// RecordOccurrence atomically inserts the transaction for occurrence and moves the
	// template's next run date to next. It returns the new transaction id.
	RecordOccurrence(ctx context.Context, t core.RecurringTemplate, occurrence, next core.Date) (string, error)
}

// OccurrenceNotifier is told about every transaction a pass generates.
type OccurrenceNotifier interface {
	OccurrenceRecorded(ctx context.Context, txn core.GeneratedTransaction) error
}

// Clock supplies the processing date.
type Clock interface {
	Today() core.Date
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() core.Date

func (f ClockFunc) Today() core.Date { return f() }

// LocationClock returns a Clock that reads the calendar date in loc. It must use the
// same zone as the schedule that triggers passes. A nil loc means time.Local.
func LocationClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return locationClock{loc: loc, now: time.Now}
}

type locationClock struct {
	loc *time.Location
	now func() time.Time
}

func (c locationClock) Today() core.Date { return core.DateOf(c.now().In(c.loc)) }

// FailureKind classifies why a template was not processed.
type FailureKind string

const (
	FailureUnsupportedInterval FailureKind = "unsupported_interval"
	FailureStoreWrite          FailureKind = "store_write"
)

// TemplateFailure describes one template that a pass could not process.
type TemplateFailure struct {
	TemplateID string
	Kind       FailureKind
	Detail     string
}

// PassSummary is the outcome of one RunPass.
type PassSummary struct {
	Date      core.Date
	Due       int
	Succeeded int
	Failures  []TemplateFailure
	Duration  time.Duration
}

// Failed returns the number of templates that failed.
func (s PassSummary) Failed() int {
	return len(s.Failures)
}

// ProcessorOption configures a RecurringProcessor.
type ProcessorOption func(*RecurringProcessor)

// WithClock overrides the system clock.
func WithClock(c Clock) ProcessorOption {
	return func(p *RecurringProcessor) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithConcurrency bounds how many templates are processed at once. Values below 1 mean 1.
func WithConcurrency(n int) ProcessorOption {
	return func(p *RecurringProcessor) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

// WithNotifier registers a hook called after each recorded occurrence.
func WithNotifier(n OccurrenceNotifier) ProcessorOption {
	return func(p *RecurringProcessor) {
		p.notifier = n
	}
}

// RecurringProcessor materializes due recurring templates into transactions.
type RecurringProcessor struct {
	store       RecurrenceStore
	clock       Clock
	notifier    OccurrenceNotifier
	concurrency int
	metrics     passMetrics
}

// NewRecurringProcessor creates a processor that runs sequentially on the local clock.
func NewRecurringProcessor(store RecurrenceStore, opts ...ProcessorOption) *RecurringProcessor {
	p := &RecurringProcessor{
		store:       store,
		clock:       LocationClock(time.Local),
		concurrency: 1,
		metrics:     newPassMetrics(otel.Meter("finman/recurring")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunPass processes every template due today. Each due template yields exactly one
// transaction dated at its next run date and is advanced by one interval. Templates
// fail independently; only a failure to read the due set aborts the pass.
func (p *RecurringProcessor) RunPass(ctx context.Context) (PassSummary, error) {
	if p.store == nil {
		return PassSummary{}, fmt.Errorf("processor not properly initialized")
	}

	start := time.Now()
	today := p.clock.Today()

	ctx, span := passTracer.Start(ctx, "recurring.pass",
		trace.WithAttributes(attribute.String("recurring.date", today.String())))
	defer span.End()

	summary := PassSummary{Date: today}

	due, err := p.store.FetchDueTemplates(ctx, today)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreRead, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	summary.Due = len(due)
	if len(due) == 0 {
		slog.InfoContext(ctx, "No recurring transactions due", "date", today.String())
		return p.finish(ctx, span, summary, start), nil
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"due", len(due),
		"date", today.String(),
		"concurrency", p.concurrency)

	// Results are written by index so the summary keeps the store's ordering.
	results := make([]*TemplateFailure, len(due))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, t := range due {
		i, t := i, t
		g.Go(func() error {
			results[i] = p.processTemplate(ctx, t)
			return nil
		})
	}
	// Workers always return nil; the group only bounds concurrency.
	g.Wait()

	for _, failure := range results {
		if failure == nil {
			summary.Succeeded++
			continue
		}
		summary.Failures = append(summary.Failures, *failure)
	}

	return p.finish(ctx, span, summary, start), nil
}

func (p *RecurringProcessor) finish(ctx context.Context, span trace.Span, summary PassSummary, start time.Time) PassSummary {
	summary.Duration = time.Since(start)
	p.metrics.duration.Record(ctx, summary.Duration.Seconds())

	span.SetAttributes(
		attribute.Int("recurring.due", summary.Due),
		attribute.Int("recurring.succeeded", summary.Succeeded),
		attribute.Int("recurring.failed", summary.Failed()),
	)

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"date", summary.Date.String(),
		"due", summary.Due,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed(),
		"duration", summary.Duration)

	return summary
}

// processTemplate handles one due template and returns nil on success.
func (p *RecurringProcessor) processTemplate(ctx context.Context, t core.RecurringTemplate) *TemplateFailure {
	ctx, span := passTracer.Start(ctx, "recurring.template",
		trace.WithAttributes(
			attribute.String("recurring.id", t.ID),
			attribute.String("recurring.interval", string(t.Interval)),
		))
	defer span.End()

	occurrence := t.NextRunDate

	next, err := core.NextOccurrence(occurrence, t.Interval)
	if err != nil {
		slog.WarnContext(ctx, "Skipping recurring template with unsupported interval",
			"recurring_id", t.ID,
			"interval", string(t.Interval),
			"error", err)
		return p.fail(ctx, span, t, FailureUnsupportedInterval, err)
	}

	txnID, err := p.store.RecordOccurrence(ctx, t, occurrence, next)
	if errors.Is(err, storage.ErrOccurrenceExists) {
		slog.ErrorContext(ctx, "Recurring template points at an occurrence that was already recorded; move its next run date forward",
			"recurring_id", t.ID,
			"occurrence", occurrence.String(),
			"error", err)
		return p.fail(ctx, span, t, FailureStoreWrite, err)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record recurring occurrence",
			"recurring_id", t.ID,
			"occurrence", occurrence.String(),
			"error", err)
		return p.fail(ctx, span, t, FailureStoreWrite, err)
	}

	p.metrics.created.Add(ctx, 1)
	slog.InfoContext(ctx, "Created transaction from recurring template",
		"recurring_id", t.ID,
		"transaction_id", txnID,
		"user_id", t.UserID,
		"amount", t.Amount.String(),
		"date", occurrence.String(),
		"next_run_date", next.String())

	if p.notifier != nil {
		txn := t.Materialize(occurrence)
		txn.ID = txnID
		if err := p.notifier.OccurrenceRecorded(ctx, txn); err != nil {
			slog.WarnContext(ctx, "Failed to notify generated transaction",
				"transaction_id", txnID,
				"recurring_id", t.ID,
				"error", err)
		}
	}

	return nil
}

func (p *RecurringProcessor) fail(ctx context.Context, span trace.Span, t core.RecurringTemplate, kind FailureKind, err error) *TemplateFailure {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))

	return &TemplateFailure{
		TemplateID: t.ID,
		Kind:       kind,
		Detail:     err.Error(),
	}
}
