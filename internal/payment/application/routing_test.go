package application_test

import (
	"fmt"
	"testing"

	"github.com/dmehra2102/Trust-Settlement-System/internal/payment/application"
)

func TestLastDigitParity(t *testing.T) {
	for d := range 10 {
		card := fmt.Sprintf("411111111111111%d", d)
		if got, want := application.LastDigitParity(card, 2), d%2; got != want {
			t.Fatalf("card %s -> %d, want %d", card, got, want)
		}
	}
	if got := application.LastDigitParity("4111111111111117", 3); got != 1 {
		t.Fatalf("three routes: %d", got)
	}
}

func TestWeightedHashIsDeterministicAndWeighted(t *testing.T) {
	s := application.WeightedHash(3, 1)
	counts := make([]int, 2)
	for i := range 4000 {
		card := fmt.Sprintf("4000%012d", i)
		first := s(card, 2)
		if s(card, 2) != first {
			t.Fatal("routing not deterministic")
		}
		counts[first]++
	}
	// Route 0 holds three of four slots.
	if counts[0] < 2600 || counts[0] > 3400 {
		t.Fatalf("distribution = %v", counts)
	}
}

func TestWeightedHashCoversExtraRoutes(t *testing.T) {
	s := application.WeightedHash()
	seen := map[int]bool{}
	for i := range 200 {
		seen[s(fmt.Sprintf("5500%012d", i), 3)] = true
	}
	if len(seen) != 3 {
		t.Fatalf("routes used = %v", seen)
	}
}

func TestNewRouterNeedsRoutes(t *testing.T) {
	if _, err := application.NewRouter(nil); err == nil {
		t.Fatal("expected error")
	}
	r, err := application.NewRouter(nil, application.Route{Name: "only"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Route("4111111111111113").Name != "only" {
		t.Fatal("single route not used")
	}
}
