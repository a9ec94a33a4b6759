package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

const lockPollInterval = 10 * time.Millisecond

// Locker guards a critical section with one or more named locks.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// RoomLockKey and DoctorLockKey name the locks a booking attempt takes.
func RoomLockKey(orgID, roomID uuid.UUID) string {
	return fmt.Sprintf("lock:org:%s:room:%s", orgID, roomID)
}

func DoctorLockKey(orgID, doctorID uuid.UUID) string {
	return fmt.Sprintf("lock:org:%s:doctor:%s", orgID, doctorID)
}

// lockStore is the pair of atomic operations the locker needs from redis.
type lockStore interface {
	SetNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) error
}

type redisStore struct {
	client *redis.Client
}

func (s redisStore) SetNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, token, ttl).Result()
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (s redisStore) CompareAndDelete(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, s.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

type redisLocker struct {
	store lockStore
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

// NewRedisLocker creates a locker backed by SET NX keys with a per holder token.
// A busy key is polled for up to wait before giving up.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return newLocker(redisStore{client: client}, ttl, wait)
}

func newLocker(store lockStore, ttl, wait time.Duration) *redisLocker {
	return &redisLocker{
		store: store,
		ttl:   ttl,
		wait:  wait,
		poll:  lockPollInterval,
	}
}

// WithLocks acquires every key in sorted order so two callers asking for the
// same pair cannot deadlock each other. A held key is polled until it frees,
// the wait elapses or ctx is done. On failure everything taken so far is
// released. If the wait elapses or redis errors, the returned error wraps
// ErrLockNotAcquired and fn has not run.
func (l *redisLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := dedupeSorted(keys)
	token := uuid.NewString()

	var held []string
	defer func() {
		for _, key := range held {
			_ = l.release(context.WithoutCancel(ctx), key, token)
		}
	}()

	deadline := time.Now().Add(l.wait)
	for _, key := range sorted {
		if err := l.acquire(ctx, key, token, deadline); err != nil {
			return err
		}
		held = append(held, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string, deadline time.Time) error {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s still held after %s", ErrLockNotAcquired, key, l.wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	if err := l.store.CompareAndDelete(ctx, key, token); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func dedupeSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NoopLocker runs fn directly. Used when the booking lock is disabled.
type NoopLocker struct{}

func (NoopLocker) WithLocks(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
