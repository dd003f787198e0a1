package processor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/application"
)

// HTTPProcessor posts payments to <baseURL>/payments. 2xx approves, 4xx is a
// definitive decline, anything else is an error worth retrying.
type HTTPProcessor struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, client *http.Client) *HTTPProcessor {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProcessor{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type chargeReq struct {
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId"`
	CardNumber string    `json:"cardNumber"`
	ExpiryDate time.Time `json:"expiryDate"`
}

func (p *HTTPProcessor) Process(ctx context.Context, req application.ProcessorRequest) (bool, error) {
	body, err := json.Marshal(chargeReq(req))
	if err != nil {
		return false, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Idempotency-Key", req.PaymentID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(hreq.Header))

	resp, err := p.client.Do(hreq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return false, nil
	default:
		return false, fmt.Errorf("processor returned status %d", resp.StatusCode)
	}
}
