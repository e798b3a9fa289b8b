// Package lock provides a doctor-scoped mutual exclusion used around the
// appointment check-and-write.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stays held by someone else until
// the wait deadline.
var ErrNotAcquired = errors.New("lock not acquired")

// ReleaseFunc releases a held lock.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out exclusive, expiring locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// Nop is used when Redis is not configured.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Locker with SET NX PX and a token-checked release.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedis builds a locker whose keys expire after ttl. Acquire polls for up
// to wait before giving up.
func NewRedis(client redis.UniversalClient, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{
		client: client,
		prefix: "clinic:lock:",
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	full := r.prefix + key
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.client.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", full, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, r.client, []string{full}, token).Err(); err != nil {
					return fmt.Errorf("release %s: %w", full, err)
				}
				return nil
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

// DoctorKey scopes a lock to one doctor's calendar.
func DoctorKey(doctorID fmt.Stringer) string {
	return "doctor:" + doctorID.String()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
