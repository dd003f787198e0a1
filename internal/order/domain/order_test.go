package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

func TestNewOrderValidation(t *testing.T) {
	cases := []struct {
		name     string
		company  string
		amount   decimal.Decimal
		currency string
	}{
		{"no company", "", decimal.NewFromInt(1), "USD"},
		{"zero amount", "c1", decimal.Zero, "USD"},
		{"negative amount", "c1", decimal.NewFromInt(-5), "USD"},
		{"no currency", "c1", decimal.NewFromInt(1), " "},
		{"long currency", "c1", decimal.NewFromInt(1), "ABCDEFGHIJK"},
	}
	for _, tc := range cases {
		if _, err := NewOrder(tc.company, tc.amount, tc.currency); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("%s: err = %v", tc.name, err)
		}
	}

	o, err := NewOrder("c1", decimal.RequireFromString("0.01"), "EUR")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != StatusCreated || o.ID == "" {
		t.Fatalf("order = %+v", o)
	}
}

func TestTransitionsLeaveCreatedOnce(t *testing.T) {
	o, _ := NewOrder("c1", decimal.NewFromInt(10), "USD")
	if err := o.MarkCompleted(); err != nil {
		t.Fatal(err)
	}
	if o.Status != StatusCompleted {
		t.Fatalf("status = %s", o.Status)
	}
	if err := o.MarkRejected(); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("completed -> rejected err = %v", err)
	}
	if err := o.MarkCompleted(); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("completed -> completed err = %v", err)
	}
	if o.Status != StatusCompleted {
		t.Fatal("terminal status changed")
	}
}

func TestCheckDailyLimit(t *testing.T) {
	limit := DefaultDailyLimit
	if err := CheckDailyLimit(decimal.NewFromInt(9970), decimal.NewFromInt(50), limit); !errors.Is(err, apperr.ErrLimitExceeded) {
		t.Fatalf("9970+50 err = %v", err)
	}
	if err := CheckDailyLimit(decimal.NewFromInt(9970), decimal.NewFromInt(30), limit); err != nil {
		t.Fatalf("exactly at limit: %v", err)
	}
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	start, end := DayBounds(time.Date(2026, 3, 2, 2, 0, 0, 0, loc))
	if !start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) || end.Sub(start) != 24*time.Hour {
		t.Fatalf("bounds = %v %v", start, end)
	}
}
