// Package dedup records which analysis requests have already been handled so
// a redelivered request does not produce a second report. Only markers are
// stored; assessments are never cached.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker is the value stored for a claimed request
type Marker struct {
	Status    string    `json:"status"`
	FieldID   string    `json:"field_id"`
	ClaimedAt time.Time `json:"claimed_at"`
}

const (
	StatusProcessing = "PROCESSING"
	StatusReported   = "REPORTED"
)

// ErrClaimHeld means another delivery holds a live claim on the request
var ErrClaimHeld = errors.New("request is claimed by another delivery")

// Tracker claims request ids in Redis. A PROCESSING marker lives for the
// claim lease only, so a claim left by a crashed worker expires and a later
// delivery takes the request over. A REPORTED marker lives for ttl.
type Tracker struct {
	redis redis.Cmdable
	ttl   time.Duration
	lease time.Duration
}

// NewTracker creates a tracker whose reported markers expire after ttl and
// whose claims expire after lease
func NewTracker(client redis.Cmdable, ttl, lease time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	if lease > ttl {
		lease = ttl
	}
	return &Tracker{redis: client, ttl: ttl, lease: lease}
}

func key(requestID string) string {
	return fmt.Sprintf("analysis_request:%s", requestID)
}

func marker(status, fieldID string) ([]byte, error) {
	data, err := json.Marshal(Marker{
		Status:    status,
		FieldID:   fieldID,
		ClaimedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal marker: %w", err)
	}
	return data, nil
}

// Claim marks requestID as in progress. It returns false when the request
// was already reported, and ErrClaimHeld while another delivery's claim is
// still live.
func (t *Tracker) Claim(ctx context.Context, requestID, fieldID string) (bool, error) {
	data, err := marker(StatusProcessing, fieldID)
	if err != nil {
		return false, err
	}

	// The existing marker can expire between SETNX and GET; try once more then.
	for i := 0; i < 2; i++ {
		ok, err := t.redis.SetNX(ctx, key(requestID), data, t.lease).Result()
		if err != nil {
			return false, fmt.Errorf("failed to claim request in Redis: %w", err)
		}
		if ok {
			return true, nil
		}

		existing, err := t.Lookup(ctx, requestID)
		if err != nil {
			return false, err
		}
		if existing == nil {
			continue
		}
		if existing.Status == StatusReported {
			return false, nil
		}
		return false, ErrClaimHeld
	}
	return false, ErrClaimHeld
}

// Complete records requestID as reported for the full ttl
func (t *Tracker) Complete(ctx context.Context, requestID, fieldID string) error {
	data, err := marker(StatusReported, fieldID)
	if err != nil {
		return err
	}
	if err := t.redis.Set(ctx, key(requestID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark request reported: %w", err)
	}
	return nil
}

// Release drops the claim so a later delivery can retry the request
func (t *Tracker) Release(ctx context.Context, requestID string) error {
	if err := t.redis.Del(ctx, key(requestID)).Err(); err != nil {
		return fmt.Errorf("failed to release request claim: %w", err)
	}
	return nil
}

// Lookup returns the marker for requestID, or nil when none exists
func (t *Tracker) Lookup(ctx context.Context, requestID string) (*Marker, error) {
	data, err := t.redis.Get(ctx, key(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get marker from Redis: %w", err)
	}

	var m Marker
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal marker: %w", err)
	}
	return &m, nil
}

// Ping checks Redis connectivity
func (t *Tracker) Ping(ctx context.Context) error {
	return t.redis.Ping(ctx).Err()
}
