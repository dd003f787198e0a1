package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

const (
	ReasonCardExpired    = "card expired"
	ReasonDeclined       = "declined by processor"
	ReasonProcessorError = "processor error"
)

// Payment is one settlement attempt for an order. It is written once, after
// it leaves pending.
type Payment struct {
	ID            string
	OrderID       string
	CompanyID     string
	CardNumber    string
	ExpiryDate    time.Time
	Status        Status
	Processor     string
	FailureReason string
	CreatedAt     time.Time
}

func NewPayment(orderID, companyID, cardNumber string, expiry, now time.Time) (*Payment, error) {
	if err := uuid.Validate(orderID); err != nil {
		return nil, fmt.Errorf("%w: orderId is not a valid id", apperr.ErrInvalid)
	}
	cardNumber = strings.TrimSpace(cardNumber)
	if err := validateCard(cardNumber); err != nil {
		return nil, err
	}
	if expiry.IsZero() {
		return nil, fmt.Errorf("%w: expiryDate is required", apperr.ErrInvalid)
	}
	return &Payment{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		CompanyID:  companyID,
		CardNumber: cardNumber,
		ExpiryDate: expiry.UTC(),
		Status:     StatusPending,
		CreatedAt:  now.UTC(),
	}, nil
}

func validateCard(n string) error {
	if len(n) < 12 || len(n) > 19 {
		return fmt.Errorf("%w: cardNumber must have 12 to 19 digits", apperr.ErrInvalid)
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: cardNumber must contain digits only", apperr.ErrInvalid)
		}
	}
	return nil
}

func (p *Payment) Expired(now time.Time) bool {
	return p.ExpiryDate.Before(now)
}

func (p *Payment) Complete(processor string) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: payment %s is already %s", apperr.ErrConflict, p.ID, p.Status)
	}
	p.Status = StatusCompleted
	p.Processor = processor
	return nil
}

func (p *Payment) Reject(processor, reason string) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: payment %s is already %s", apperr.ErrConflict, p.ID, p.Status)
	}
	p.Status = StatusRejected
	p.Processor = processor
	p.FailureReason = reason
	return nil
}

// MaskedCard keeps only the last four digits.
func (p Payment) MaskedCard() string {
	if len(p.CardNumber) <= 4 {
		return p.CardNumber
	}
	return strings.Repeat("*", len(p.CardNumber)-4) + p.CardNumber[len(p.CardNumber)-4:]
}
