package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validTemplate() RecurringTemplate {
	cat := "cat-1"
	return RecurringTemplate{
		ID:          "tpl-1",
		UserID:      "user-1",
		CategoryID:  &cat,
		Amount:      decimal.RequireFromString("50"),
		Type:        Expense,
		Description: "Gym",
		Interval:    Weekly,
		NextRunDate: NewDate(2024, 1, 1),
		Active:      true,
	}
}

func TestRecurringTemplateValidate(t *testing.T) {
	if err := validTemplate().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*RecurringTemplate)
		want   error
	}{
		{"empty user", func(r *RecurringTemplate) { r.UserID = " " }, ErrEmptyUserID},
		{"bad type", func(r *RecurringTemplate) { r.Type = "transfer" }, ErrInvalidType},
		{"zero amount", func(r *RecurringTemplate) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"long description", func(r *RecurringTemplate) { r.Description = strings.Repeat("x", 256) }, ErrDescriptionSize},
		{"zero next run", func(r *RecurringTemplate) { r.NextRunDate = Date{} }, ErrEmptyNextRun},
		{"bad interval", func(r *RecurringTemplate) { r.Interval = "hourly" }, ErrUnsupportedInterval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := validTemplate()
			tc.mutate(&tpl)
			if err := tpl.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRecurringTemplateValidate_NegativeAmount(t *testing.T) {
	tpl := validTemplate()
	tpl.Amount = decimal.RequireFromString("-12.50")
	if err := tpl.Validate(); err != nil {
		t.Fatalf("signed amounts should be accepted, got %v", err)
	}
}

func TestMaterialize(t *testing.T) {
	tpl := validTemplate()
	on := NewDate(2024, 1, 1)

	txn := tpl.Materialize(on)

	if txn.RecurringID != tpl.ID || txn.UserID != tpl.UserID || txn.Description != tpl.Description {
		t.Errorf("Materialize() copied identity wrong: %+v", txn)
	}
	if txn.CategoryID == nil || *txn.CategoryID != "cat-1" {
		t.Errorf("Materialize() CategoryID = %v, want cat-1", txn.CategoryID)
	}
	if !txn.Amount.Equal(tpl.Amount) || txn.Type != Expense {
		t.Errorf("Materialize() amount/type = %s/%s", txn.Amount, txn.Type)
	}
	if !txn.Date.Equal(on) {
		t.Errorf("Materialize() Date = %s, want %s", txn.Date, on)
	}
}

func TestDateScan(t *testing.T) {
	want := NewDate(2024, 2, 29)
	cases := []struct {
		name string
		src  any
	}{
		{"text", "2024-02-29"},
		{"bytes", []byte("2024-02-29")},
		{"timestamp text", "2024-02-29T00:00:00Z"},
		{"time", time.Date(2024, 2, 29, 0, 0, 0, 0, time.FixedZone("", 0))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Date
			if err := d.Scan(tc.src); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if !d.Equal(want) {
				t.Errorf("Scan() = %s, want %s", d, want)
			}
		})
	}

	var d Date
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Errorf("Scan(nil) = %s, %v", d, err)
	}
}

func TestDateValue(t *testing.T) {
	v, err := NewDate(2024, 1, 8).Value()
	if err != nil || v != "2024-01-08" {
		t.Fatalf("Value() = %v, %v", v, err)
	}
	v, err = Date{}.Value()
	if err != nil || v != nil {
		t.Fatalf("zero Value() = %v, %v", v, err)
	}
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	// 23:30 UTC on Jan 2 is already Jan 3 in UTC+10.
	ts := time.Date(2024, 1, 2, 23, 30, 0, 0, time.UTC).In(loc)
	if got := DateOf(ts); !got.Equal(NewDate(2024, 1, 3)) {
		t.Errorf("DateOf() = %s, want 2024-01-03", got)
	}
}
