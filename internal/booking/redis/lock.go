package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-seating/internal/logger"
)

// Redis is the fast-path gate in front of the booking ledger: a hold
// claim must win the seat key before it may write the ledger row. Keys
// carry the hold TTL, so abandoned holds disappear from redis on their
// own and the key-expiry subscriber can clean the ledger promptly.
type Redis struct {
	Client  *redis.Client
	Logger  *logger.Logger
	HoldTTL time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger, holdTTL time.Duration) *Redis {
	return &Redis{Client: client, Logger: log, HoldTTL: holdTTL}
}

// HoldKey builds the redis key guarding one seat of one event.
func HoldKey(eventID, seatID string) string {
	return fmt.Sprintf("seat_hold:%s:%s", eventID, seatID)
}

// SplitHoldKey parses a hold key back into event and seat ids. Used by
// the key-expiry subscriber. ok is false for keys of other shapes.
func SplitHoldKey(key string) (eventID, seatID string, ok bool) {
	if !strings.HasPrefix(key, "seat_hold:") {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(key, "seat_hold:"), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// LockSeat attempts to take the seat key for the session. A re-lock by
// the owning session refreshes the TTL and succeeds.
func (r *Redis) LockSeat(eventID, seatID, sessionID string) (bool, error) {
	ctx := context.Background()
	key := HoldKey(eventID, seatID)

	ok, err := r.Client.SetNX(ctx, key, sessionID, r.HoldTTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	// Key exists: only the owner may refresh it.
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Expired between SetNX and Get; take it.
		return r.Client.SetNX(ctx, key, sessionID, r.HoldTTL).Result()
	}
	if err != nil {
		return false, err
	}
	if val != sessionID {
		return false, nil
	}
	if err := r.Client.Set(ctx, key, sessionID, r.HoldTTL).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// UnlockSeat releases the seat key iff the session owns it. Unlocking a
// foreign or missing key is a no-op.
func (r *Redis) UnlockSeat(eventID, seatID, sessionID string) error {
	ctx := context.Background()
	key := HoldKey(eventID, seatID)

	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already unlocked
	}
	if err != nil {
		return err
	}
	if val == sessionID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// UnlockSeats releases multiple seat keys, reporting the first error
// after attempting all of them.
func (r *Redis) UnlockSeats(eventID string, seatIDs []string, sessionID string) error {
	var firstErr error
	for _, seatID := range seatIDs {
		if err := r.UnlockSeat(eventID, seatID, sessionID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ClearSeat removes the seat key regardless of owner. Used when a seat
// leaves the hold phase (confirm, block, sweep).
func (r *Redis) ClearSeat(eventID, seatID string) error {
	_, err := r.Client.Del(context.Background(), HoldKey(eventID, seatID)).Result()
	return err
}
