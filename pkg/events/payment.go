// Package events holds the wire contracts exchanged between services over the
// broker.
package events

import (
	"time"

	"github.com/google/uuid"
)

const TypePaymentProcessed = "PaymentProcessed"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRejected  PaymentStatus = "rejected"
)

// PaymentProcessed is published once per finalized payment and consumed at
// least once by the order ledger.
type PaymentProcessed struct {
	EventID     string        `json:"eventId"`
	Timestamp   time.Time     `json:"timestamp"`
	PaymentID   string        `json:"paymentId"`
	OrderID     string        `json:"orderId"`
	Status      PaymentStatus `json:"status"`
	EventSource string        `json:"eventSource"`
}

func NewPaymentProcessed(paymentID, orderID string, status PaymentStatus, source string) PaymentProcessed {
	return PaymentProcessed{
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		PaymentID:   paymentID,
		OrderID:     orderID,
		Status:      status,
		EventSource: source,
	}
}
