package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

type OrderStatus string

const (
	StatusCreated   OrderStatus = "created"
	StatusCompleted OrderStatus = "completed"
	StatusRejected  OrderStatus = "rejected"
)

const MaxCurrencyLength = 10

// DefaultDailyLimit caps a company's completed order volume per UTC day.
var DefaultDailyLimit = decimal.NewFromInt(10000)

type Order struct {
	ID        string
	CompanyID string
	Amount    decimal.Decimal
	Currency  string
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewOrder(companyID string, amount decimal.Decimal, currency string) (Order, error) {
	if companyID == "" {
		return Order{}, fmt.Errorf("%w: company id is required", apperr.ErrInvalid)
	}
	if !amount.IsPositive() {
		return Order{}, fmt.Errorf("%w: amount must be greater than zero", apperr.ErrInvalid)
	}
	currency = strings.TrimSpace(currency)
	if currency == "" || len(currency) > MaxCurrencyLength {
		return Order{}, fmt.Errorf("%w: currency must be 1 to %d characters", apperr.ErrInvalid, MaxCurrencyLength)
	}
	now := time.Now().UTC()
	return Order{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o OrderStatus) Terminal() bool {
	return o == StatusCompleted || o == StatusRejected
}

func (o *Order) MarkCompleted() error { return o.transition(StatusCompleted) }

func (o *Order) MarkRejected() error { return o.transition(StatusRejected) }

func (o *Order) transition(to OrderStatus) error {
	if o.Status != StatusCreated {
		return fmt.Errorf("%w: order %s is %s, only created orders can become %s", apperr.ErrConflict, o.ID, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// LimitStatuses are the order states that count against the daily limit.
// Open orders count so that concurrent creations cannot jointly overshoot.
var LimitStatuses = []OrderStatus{StatusCreated, StatusCompleted}

// CheckDailyLimit rejects amount when it would push the day's total past
// limit.
func CheckDailyLimit(today, amount, limit decimal.Decimal) error {
	if today.Add(amount).GreaterThan(limit) {
		return fmt.Errorf("%w: daily limit of %s exceeded (today %s, requested %s)",
			apperr.ErrLimitExceeded, limit, today, amount)
	}
	return nil
}

// DayBounds returns the UTC day containing t as [start, end).
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := t.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}
