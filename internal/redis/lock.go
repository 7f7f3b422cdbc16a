package redisclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker guards booking critical sections. Every key must be acquired before
// fn runs; acquisition never waits, so a held key fails the call with
// ErrLockNotAcquired.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// DoctorDayKey serializes capacity and doctor-conflict checks for one doctor on one day.
func DoctorDayKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("lock:doctor:%s:%s", doctorID, date.Format("2006-01-02"))
}

// PatientSlotKey serializes a patient's bookings at one slot across doctors.
func PatientSlotKey(patientID uuid.UUID, date time.Time, slot string) string {
	return fmt.Sprintf("lock:patient:%s:%s:%s", patientID, date.Format("2006-01-02"), slot)
}

// lockOrder returns keys sorted and de-duplicated.
func lockOrder(keys []string) []string {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker that holds one Redis key per lock, each
// expiring after ttl so a crashed holder cannot block a slot forever.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	var held []string

	defer func() {
		for _, key := range held {
			_ = l.release(context.WithoutCancel(ctx), key, token)
		}
	}()

	for _, key := range lockOrder(keys) {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if !ok {
			return ErrLockNotAcquired
		}
		held = append(held, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// LocalLocker is an in-process Locker for single-instance deployments and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	ordered := lockOrder(keys)

	l.mu.Lock()
	for _, key := range ordered {
		if _, busy := l.held[key]; busy {
			l.mu.Unlock()
			return ErrLockNotAcquired
		}
	}
	for _, key := range ordered {
		l.held[key] = struct{}{}
	}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		for _, key := range ordered {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}()

	return fn(ctx)
}

// Held reports whether key is currently locked.
func (l *LocalLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
