package application

import (
	"context"
	"time"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/outbox"
)

// OrderOwnership asks the order ledger whether orderID exists and belongs to
// companyID.
type OrderOwnership interface {
	OrderExists(ctx context.Context, orderID, companyID string) (bool, error)
}

type ProcessorRequest struct {
	PaymentID  string
	OrderID    string
	CardNumber string
	ExpiryDate time.Time
}

// Processor settles a payment with an external provider. A decline is
// (false, nil); an error means the outcome is unknown.
type Processor interface {
	Process(ctx context.Context, req ProcessorRequest) (bool, error)
}

type PaymentRepository interface {
	// SaveWithOutbox stores the finalized payment and its event atomically.
	SaveWithOutbox(ctx context.Context, p domain.Payment, event outbox.Event) error
	Get(ctx context.Context, id string) (domain.Payment, error)
	List(ctx context.Context) ([]domain.Payment, error)
}
