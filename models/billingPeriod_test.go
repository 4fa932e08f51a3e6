package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/warehouse_backend/models"
)

func TestResolveBillingPeriodCalendarMonth(t *testing.T) {
	period, err := models.ResolveBillingPeriod(2026, 2, models.PeriodPolicyCalendarMonth)
	if err != nil {
		t.Fatalf("ResolveBillingPeriod: %v", err)
	}
	if !period.Start.Equal(day(2026, time.February, 1)) {
		t.Fatalf("start = %s, want 2026-02-01", period.Start.Format("2006-01-02"))
	}
	if !period.End.Equal(day(2026, time.February, 28)) {
		t.Fatalf("end = %s, want 2026-02-28", period.End.Format("2006-01-02"))
	}
	if period.Days() != 28 {
		t.Fatalf("Days() = %d, want 28", period.Days())
	}

	// leap year
	period, err = models.ResolveBillingPeriod(2028, 2, "")
	if err != nil {
		t.Fatalf("ResolveBillingPeriod: %v", err)
	}
	if period.Days() != 29 {
		t.Fatalf("Days() for 2028-02 = %d, want 29", period.Days())
	}
}

func TestResolveBillingPeriodMondayCycle(t *testing.T) {
	// March 2026: the 1st is a Sunday, so the cycle starts Monday the 2nd.
	// April 2026: the 1st is a Wednesday, next Monday is the 6th; the March
	// cycle therefore ends April 5th.
	period, err := models.ResolveBillingPeriod(2026, 3, models.PeriodPolicyMondayCycle)
	if err != nil {
		t.Fatalf("ResolveBillingPeriod: %v", err)
	}
	if !period.Start.Equal(day(2026, time.March, 2)) {
		t.Fatalf("start = %s, want 2026-03-02", period.Start.Format("2006-01-02"))
	}
	if !period.End.Equal(day(2026, time.April, 5)) {
		t.Fatalf("end = %s, want 2026-04-05", period.End.Format("2006-01-02"))
	}
	if period.Start.Weekday() != time.Monday {
		t.Fatalf("cycle start is %s, want Monday", period.Start.Weekday())
	}
	if period.End.Weekday() != time.Sunday {
		t.Fatalf("cycle end is %s, want Sunday", period.End.Weekday())
	}

	// A month whose 1st is already a Monday starts on the 1st.
	period, err = models.ResolveBillingPeriod(2026, 6, models.PeriodPolicyMondayCycle)
	if err != nil {
		t.Fatalf("ResolveBillingPeriod: %v", err)
	}
	if !period.Start.Equal(day(2026, time.June, 1)) {
		t.Fatalf("start = %s, want 2026-06-01", period.Start.Format("2006-01-02"))
	}
}

func TestResolveBillingPeriodRejectsBadInput(t *testing.T) {
	cases := []struct {
		year, month int
		policy      models.PeriodPolicy
	}{
		{1999, 1, models.PeriodPolicyCalendarMonth},
		{2026, 0, models.PeriodPolicyCalendarMonth},
		{2026, 13, models.PeriodPolicyCalendarMonth},
		{2026, 5, models.PeriodPolicy("FortnightCycle")},
	}
	for _, c := range cases {
		if _, err := models.ResolveBillingPeriod(c.year, c.month, c.policy); !errors.Is(err, models.ErrInvalidPeriod) {
			t.Fatalf("ResolveBillingPeriod(%d, %d, %q) err = %v, want ErrInvalidPeriod",
				c.year, c.month, c.policy, err)
		}
	}
}

func TestNewBillingPeriodRejectsInvertedRange(t *testing.T) {
	if _, err := models.NewBillingPeriod(day(2026, time.March, 31), day(2026, time.March, 1)); !errors.Is(err, models.ErrInvalidPeriod) {
		t.Fatalf("inverted range err = %v, want ErrInvalidPeriod", err)
	}

	// times of day are truncated to UTC dates
	period, err := models.NewBillingPeriod(
		time.Date(2026, time.March, 1, 15, 30, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 8, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("NewBillingPeriod: %v", err)
	}
	if !period.Start.Equal(day(2026, time.March, 1)) || !period.End.Equal(day(2026, time.March, 31)) {
		t.Fatalf("period = %s, want 2026-03-01..2026-03-31", period)
	}
	if !period.Contains(day(2026, time.March, 15)) {
		t.Fatalf("Contains(2026-03-15) = false, want true")
	}
	if period.Contains(day(2026, time.April, 1)) {
		t.Fatalf("Contains(2026-04-01) = true, want false")
	}
}
