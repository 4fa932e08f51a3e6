package models

import (
	"fmt"
	"time"
)

// PeriodPolicy decides where billing-period boundaries fall. The resolver is
// independent of the storage ledger generator so the boundary policy can be
// tested in isolation.
type PeriodPolicy string

const (
	// PeriodPolicyCalendarMonth bills from the 1st to the last day of the month.
	PeriodPolicyCalendarMonth PeriodPolicy = "CalendarMonth"
	// PeriodPolicyMondayCycle bills from the first Monday on or after the 1st
	// up to the day before the next cycle's first Monday. Some third-party
	// operators invoice on this weekly-aligned cycle instead of calendar months.
	PeriodPolicyMondayCycle PeriodPolicy = "MondayCycle"
)

// BillingPeriod is an inclusive date range. Start and End are midnight UTC.
type BillingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewBillingPeriod validates a custom range. Times are truncated to UTC dates.
func NewBillingPeriod(start, end time.Time) (BillingPeriod, error) {
	s := dateUTC(start)
	e := dateUTC(end)
	if s.IsZero() || e.IsZero() || e.Before(s) {
		return BillingPeriod{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidPeriod,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return BillingPeriod{Start: s, End: e}, nil
}

// ResolveBillingPeriod returns the billing period for a year/month under the
// given policy. An empty policy means calendar month.
func ResolveBillingPeriod(year, month int, policy PeriodPolicy) (BillingPeriod, error) {
	if year < 2000 || year > 2200 || month < 1 || month > 12 {
		return BillingPeriod{}, fmt.Errorf("%w: year=%d month=%d", ErrInvalidPeriod, year, month)
	}
	firstOfMonth := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	firstOfNext := firstOfMonth.AddDate(0, 1, 0)

	switch policy {
	case PeriodPolicyCalendarMonth, "":
		return BillingPeriod{Start: firstOfMonth, End: firstOfNext.AddDate(0, 0, -1)}, nil
	case PeriodPolicyMondayCycle:
		start := nextMondayOnOrAfter(firstOfMonth)
		end := nextMondayOnOrAfter(firstOfNext).AddDate(0, 0, -1)
		return BillingPeriod{Start: start, End: end}, nil
	}
	return BillingPeriod{}, fmt.Errorf("%w: unknown period policy %q", ErrInvalidPeriod, policy)
}

// Days returns the number of calendar days in the period (inclusive).
func (p BillingPeriod) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Contains reports whether the date of t falls inside the period.
func (p BillingPeriod) Contains(t time.Time) bool {
	d := dateUTC(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p BillingPeriod) String() string {
	return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
}

func nextMondayOnOrAfter(t time.Time) time.Time {
	offset := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset)
}

func dateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
