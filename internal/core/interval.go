package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Daily     Interval = "daily"
	Weekly    Interval = "weekly"
	Biweekly  Interval = "biweekly"
	Monthly   Interval = "monthly"
	Quarterly Interval = "quarterly"
	Yearly    Interval = "yearly"
)

// Interval is the recurrence period of a template.
type Interval string

// ErrUnsupportedInterval matches every UnsupportedIntervalError via errors.Is.
var ErrUnsupportedInterval = errors.New("unsupported interval")

// UnsupportedIntervalError reports an interval value outside the known set.
type UnsupportedIntervalError struct {
	Value string
}

func (e *UnsupportedIntervalError) Error() string {
	return fmt.Sprintf("unsupported interval: %q", e.Value)
}

func (e *UnsupportedIntervalError) Is(target error) bool {
	return target == ErrUnsupportedInterval
}

// intervalNames maps every accepted spelling to its canonical interval.
var intervalNames = map[string]Interval{
	"daily":     Daily,
	"weekly":    Weekly,
	"biweekly":  Biweekly,
	"monthly":   Monthly,
	"quarterly": Quarterly,
	"yearly":    Yearly,
	"annually":  Yearly,
}

// advancers holds the step function for each canonical interval.
var advancers = map[Interval]func(Date) Date{
	Daily:     func(d Date) Date { return d.AddDays(1) },
	Weekly:    func(d Date) Date { return d.AddDays(7) },
	Biweekly:  func(d Date) Date { return d.AddDays(14) },
	Monthly:   func(d Date) Date { return d.AddMonths(1) },
	Quarterly: func(d Date) Date { return d.AddMonths(3) },
	Yearly:    func(d Date) Date { return d.AddMonths(12) },
}

// ParseInterval resolves s case-insensitively to a canonical Interval.
// "annually" is accepted as a spelling of Yearly.
func ParseInterval(s string) (Interval, error) {
	iv, ok := intervalNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &UnsupportedIntervalError{Value: s}
	}
	return iv, nil
}

func (i Interval) String() string {
	return string(i)
}

// NextOccurrence returns the occurrence that follows anchor for the given interval.
// Month-based intervals clamp to the last day of a shorter target month, so
// 2024-01-31 monthly is 2024-02-29 and 2024-02-29 yearly is 2025-02-28.
func NextOccurrence(anchor Date, interval Interval) (Date, error) {
	iv, err := ParseInterval(string(interval))
	if err != nil {
		return Date{}, err
	}
	return advancers[iv](anchor), nil
}
