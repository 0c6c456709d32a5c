package core

import (
	"errors"
	"testing"
)

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name     string
		anchor   Date
		interval Interval
		want     Date
	}{
		{"daily", NewDate(2024, 1, 1), Daily, NewDate(2024, 1, 2)},
		{"daily across year end", NewDate(2024, 12, 31), Daily, NewDate(2025, 1, 1)},
		{"weekly", NewDate(2024, 1, 1), Weekly, NewDate(2024, 1, 8)},
		{"biweekly", NewDate(2024, 1, 25), Biweekly, NewDate(2024, 2, 8)},
		{"monthly", NewDate(2024, 3, 15), Monthly, NewDate(2024, 4, 15)},
		{"monthly Jan 31 in leap year clamps to Feb 29", NewDate(2024, 1, 31), Monthly, NewDate(2024, 2, 29)},
		{"monthly Jan 31 clamps to Feb 28", NewDate(2025, 1, 31), Monthly, NewDate(2025, 2, 28)},
		{"monthly Mar 31 clamps to Apr 30", NewDate(2024, 3, 31), Monthly, NewDate(2024, 4, 30)},
		{"monthly December rolls year", NewDate(2024, 12, 10), Monthly, NewDate(2025, 1, 10)},
		{"quarterly", NewDate(2024, 1, 15), Quarterly, NewDate(2024, 4, 15)},
		{"quarterly Nov 30 clamps to Feb 28", NewDate(2024, 11, 30), Quarterly, NewDate(2025, 2, 28)},
		{"quarterly Aug 31 clamps to Nov 30", NewDate(2024, 8, 31), Quarterly, NewDate(2024, 11, 30)},
		{"yearly", NewDate(2024, 6, 1), Yearly, NewDate(2025, 6, 1)},
		{"yearly Feb 29 clamps to Feb 28", NewDate(2024, 2, 29), Yearly, NewDate(2025, 2, 28)},
		{"annually alias", NewDate(2023, 3, 1), Interval("annually"), NewDate(2024, 3, 1)},
		{"upper case name", NewDate(2024, 1, 1), Interval("WEEKLY"), NewDate(2024, 1, 8)},
		{"mixed case with spaces", NewDate(2024, 1, 31), Interval(" Monthly "), NewDate(2024, 2, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.anchor, tt.interval)
			if err != nil {
				t.Fatalf("NextOccurrence() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence(%s, %s) = %s, want %s", tt.anchor, tt.interval, got, tt.want)
			}
		})
	}
}

func TestNextOccurrence_StrictlyAfterAnchor(t *testing.T) {
	intervals := []Interval{Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly, "annually"}

	// Walk every day of a leap year and the following common year.
	for d := NewDate(2024, 1, 1); d.Before(NewDate(2026, 1, 1)); d = d.AddDays(1) {
		for _, iv := range intervals {
			next, err := NextOccurrence(d, iv)
			if err != nil {
				t.Fatalf("NextOccurrence(%s, %s) error = %v", d, iv, err)
			}
			if !next.After(d) {
				t.Fatalf("NextOccurrence(%s, %s) = %s, want a later date", d, iv, next)
			}
			// Round-trip through the storage layout to prove the date is valid.
			if parsed, err := ParseDate(next.String()); err != nil || !parsed.Equal(next) {
				t.Fatalf("NextOccurrence(%s, %s) produced invalid date %s", d, iv, next)
			}
		}
	}
}

func TestNextOccurrence_Unsupported(t *testing.T) {
	anchor := NewDate(2024, 1, 1)

	for _, raw := range []string{"UNKNOWN", "", "fortnightly", "month"} {
		t.Run(raw, func(t *testing.T) {
			got, err := NextOccurrence(anchor, Interval(raw))
			if err == nil {
				t.Fatalf("NextOccurrence(%q) expected error, got %s", raw, got)
			}
			if !errors.Is(err, ErrUnsupportedInterval) {
				t.Errorf("NextOccurrence(%q) error = %v, want ErrUnsupportedInterval", raw, err)
			}
			var uerr *UnsupportedIntervalError
			if !errors.As(err, &uerr) || uerr.Value != raw {
				t.Errorf("NextOccurrence(%q) error value = %+v, want %q", raw, uerr, raw)
			}
			if !got.IsZero() {
				t.Errorf("NextOccurrence(%q) = %s, want zero date", raw, got)
			}
		})
	}

	if !anchor.Equal(NewDate(2024, 1, 1)) {
		t.Errorf("anchor mutated to %s", anchor)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    Interval
		wantErr bool
	}{
		{"daily", Daily, false},
		{"Weekly", Weekly, false},
		{"BIWEEKLY", Biweekly, false},
		{"monthly", Monthly, false},
		{"quarterly", Quarterly, false},
		{"yearly", Yearly, false},
		{"Annually", Yearly, false},
		{"hourly", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInterval() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}
