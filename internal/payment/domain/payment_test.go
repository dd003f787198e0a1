package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func TestNewPaymentValidation(t *testing.T) {
	order := uuid.NewString()
	cases := []struct {
		name, order, card string
		expiry            time.Time
		ok                bool
	}{
		{"valid", order, "4111111111111111", now.AddDate(1, 0, 0), true},
		{"bad order", "nope", "4111111111111111", now, false},
		{"short card", order, "4111", now, false},
		{"letters", order, "4111a11111111111", now, false},
		{"no expiry", order, "4111111111111111", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewPayment(tc.order, "c1", tc.card, tc.expiry, now)
			if tc.ok {
				if err != nil || p.Status != StatusPending || p.ID == "" {
					t.Fatalf("p = %+v, err = %v", p, err)
				}
				return
			}
			if !errors.Is(err, apperr.ErrInvalid) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestFinalizeOnlyOnce(t *testing.T) {
	p, _ := NewPayment(uuid.NewString(), "c1", "4111111111111111", now, now)
	if err := p.Complete("A"); err != nil {
		t.Fatal(err)
	}
	if err := p.Reject("A", "x"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v", err)
	}
	if p.Status != StatusCompleted || p.Processor != "A" {
		t.Fatalf("p = %+v", p)
	}
}

func TestExpired(t *testing.T) {
	p, _ := NewPayment(uuid.NewString(), "c1", "4111111111111111", now.AddDate(0, 0, -1), now)
	if !p.Expired(now) {
		t.Fatal("yesterday's expiry not expired")
	}
	p.ExpiryDate = now
	if p.Expired(now) {
		t.Fatal("expiry equal to now treated as expired")
	}
}

func TestMaskedCard(t *testing.T) {
	p := Payment{CardNumber: "4111111111111234"}
	if got := p.MaskedCard(); got != "************1234" {
		t.Fatalf("masked = %q", got)
	}
}
