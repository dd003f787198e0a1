// Package idempotency remembers which broker events a consumer group has
// already applied. It backs up, not replaces, the state checks of the
// consumer's own aggregate.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb   *redis.Client
	ttl   time.Duration
	scope string
}

// NewStore scopes keys by consumer group so two groups reading the same topic
// keep separate records.
func NewStore(rdb *redis.Client, scope string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, scope: scope}
}

func (s *Store) Key(eventID string) string {
	return fmt.Sprintf("idem:%s:%s", s.scope, eventID)
}

// Seen reports whether eventID was marked processed.
func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.Key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records eventID as processed. Call it only after the event's effects
// are durable; a crash in between leads to redelivery, never to loss.
func (s *Store) Mark(ctx context.Context, eventID string) error {
	return s.rdb.SetNX(ctx, s.Key(eventID), "1", s.ttl).Err()
}
