package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/pkg/errors"
)

var (
	// ErrLockNotAcquired is returned when the retry budget runs out before
	// the lock frees up.
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "lock not acquired")
	// ErrLockNotHeld is returned by Unlock when the key is gone or owned by
	// someone else.
	ErrLockNotHeld = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// unlockScript deletes the key only when the stored token matches, so an
// expired-and-reacquired lock is never released by its former owner.
var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Mutex is a single-owner distributed lock.  The recount worker takes one
// per request ID so Kafka redeliveries never process the same recount twice
// concurrently.  A Mutex is not safe for use from multiple goroutines.
type Mutex struct {
	client     *Client
	logger     logging.Logger
	key        string
	token      string
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
	watchdog   bool

	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

type MutexOption func(*Mutex)

func WithLockTTL(ttl time.Duration) MutexOption {
	return func(m *Mutex) { m.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) MutexOption {
	return func(m *Mutex) { m.retryDelay = delay }
}

func WithRetryCount(count int) MutexOption {
	return func(m *Mutex) { m.retryCount = count }
}

// WithWatchdog keeps the lock alive past its TTL while it is held.  Enable
// it when the protected section can outlive the TTL, as a recount can.
func WithWatchdog(enabled bool) MutexOption {
	return func(m *Mutex) { m.watchdog = enabled }
}

const lockKeyPrefix = "lock:"

// NewMutex builds a mutex for the named resource.  Every Mutex instance
// carries its own random token; two instances for the same name contend.
func NewMutex(client *Client, log logging.Logger, prefix, name string, opts ...MutexOption) *Mutex {
	if log == nil {
		log = logging.NewNopLogger()
	}
	m := &Mutex{
		client:     client,
		logger:     log.Named("lock"),
		key:        prefix + lockKeyPrefix + name,
		token:      uuid.New().String(),
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lock blocks until the lock is acquired, the retry budget is spent, or ctx
// ends.
func (m *Mutex) Lock(ctx context.Context) error {
	for i := 0; i < m.retryCount; i++ {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

// TryLock attempts a single acquisition.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key, m.token, m.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "lock acquisition failed")
	}
	if ok && m.watchdog {
		m.startWatchdog()
	}
	return ok, nil
}

// Unlock releases the lock if this instance still owns it.
func (m *Mutex) Unlock(ctx context.Context) error {
	m.stopWatchdog()
	res, err := unlockScript.Run(ctx, m.client.Underlying(), []string{m.key}, m.token).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock release failed")
	}
	if res.(int64) == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend pushes the expiry out by the configured TTL if still held.
func (m *Mutex) Extend(ctx context.Context) (bool, error) {
	res, err := extendScript.Run(ctx, m.client.Underlying(), []string{m.key}, m.token, m.ttl.Milliseconds()).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "lock extension failed")
	}
	return res.(int64) == 1, nil
}

// TTL reports the remaining lifetime of the lock key.
func (m *Mutex) TTL(ctx context.Context) (time.Duration, error) {
	return m.client.PTTL(ctx, m.key).Result()
}

func (m *Mutex) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	m.watchdogDone = make(chan struct{})
	go m.runWatchdog(ctx, m.ttl/3)
}

func (m *Mutex) stopWatchdog() {
	if m.watchdogCancel == nil {
		return
	}
	m.watchdogCancel()
	<-m.watchdogDone
	m.watchdogCancel = nil
}

func (m *Mutex) runWatchdog(ctx context.Context, interval time.Duration) {
	defer close(m.watchdogDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := m.Extend(ctx)
			if err != nil {
				m.logger.Error("lock extension failed", logging.String("key", m.key), logging.Err(err))
				return
			}
			if !ok {
				m.logger.Warn("lock lost before release", logging.String("key", m.key))
				return
			}
		}
	}
}
