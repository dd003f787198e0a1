package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "order-service", time.Hour), mr
}

func TestSeenOnlyAfterMark(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("unmarked event reported seen")
	}
	// Checking must not mark.
	if seen, _ := s.Seen(ctx, "evt-1"); seen {
		t.Fatal("Seen marked the event")
	}

	if err := s.Mark(ctx, "evt-1"); err != nil {
		t.Fatal(err)
	}
	if seen, _ := s.Seen(ctx, "evt-1"); !seen {
		t.Fatal("marked event not seen")
	}
}

func TestMarkExpires(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	if err := s.Mark(ctx, "evt-1"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(s.Key("evt-1")); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if seen, _ := s.Seen(ctx, "evt-1"); seen {
		t.Fatal("expired mark still seen")
	}
}

func TestKeysScopedByGroup(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := NewStore(rdb, "group-a", time.Hour)
	b := NewStore(rdb, "group-b", time.Hour)
	_ = a.Mark(context.Background(), "evt-1")
	if seen, _ := b.Seen(context.Background(), "evt-1"); seen {
		t.Fatal("mark leaked across groups")
	}
}
