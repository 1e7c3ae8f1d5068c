package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/ipscope/internal/config"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// ErrCacheMiss marks an absent key.  Callers distinguish it from transport
// errors with errors.Is.
var ErrCacheMiss = errors.New(errors.ErrCodeNotFound, "cache miss")

// Store is a JSON value store with a shared key prefix and jittered TTLs.
type Store struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
}

type StoreOption func(*Store)

func WithPrefix(prefix string) StoreOption {
	return func(s *Store) { s.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.defaultTTL = ttl }
}

func NewStore(client *Client, log logging.Logger, opts ...StoreOption) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Store{
		client:     client,
		logger:     log,
		prefix:     config.DefaultRedisKeyPrefix,
		defaultTTL: config.DefaultCacheResultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) fullKey(key string) string {
	return s.prefix + key
}

// jitterTTL spreads expirations by +/-10% so keys written together do not
// expire together.
func (s *Store) jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return 0
	}
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

func (s *Store) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache get failed")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value decode failed")
	}
	return nil
}

func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "cache value encode failed")
	}
	if err := s.client.Set(ctx, s.fullKey(key), data, s.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache set failed")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = s.fullKey(k)
	}
	if err := s.client.Del(ctx, fullKeys...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache delete failed")
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.fullKey(key)).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "cache exists failed")
	}
	return n > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// ResultStore persists aggregation results: the read-through cache consulted
// on every API call and the keyed results of completed recounts.
type ResultStore struct {
	store      *Store
	logger     logging.Logger
	resultTTL  time.Duration
	recountTTL time.Duration
}

func NewResultStore(store *Store, cfg config.CacheConfig, log logging.Logger) *ResultStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ResultStore{
		store:      store,
		logger:     log.Named("resultstore"),
		resultTTL:  cfg.ResultTTL,
		recountTTL: cfg.RecountTTL,
	}
}

// GetResult is best-effort: any failure reads as a miss so the caller falls
// through to a live aggregation.
func (r *ResultStore) GetResult(ctx context.Context, key string) (*ipactivity.AggregateResult, bool) {
	var result ipactivity.AggregateResult
	err := r.store.Get(ctx, key, &result)
	if err == nil {
		return &result, true
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("result cache read failed", logging.String("key", key), logging.Err(err))
	}
	return nil, false
}

// SetResult is best-effort: failures are logged, never surfaced.
func (r *ResultStore) SetResult(ctx context.Context, key string, result *ipactivity.AggregateResult) {
	if err := r.store.Set(ctx, key, result, r.resultTTL); err != nil {
		r.logger.Warn("result cache write failed", logging.String("key", key), logging.Err(err))
	}
}

func recountKey(requestID string) string {
	return "recount:" + requestID
}

// SaveRecount stores a completed recount under its request ID.  Unlike the
// result cache this write must not be silently lost, so the error surfaces.
func (r *ResultStore) SaveRecount(ctx context.Context, result *ipactivity.RecountResult) error {
	return r.store.Set(ctx, recountKey(result.RequestID), result, r.recountTTL)
}

// GetRecount retrieves a completed recount by request ID.
func (r *ResultStore) GetRecount(ctx context.Context, requestID string) (*ipactivity.RecountResult, error) {
	var result ipactivity.RecountResult
	err := r.store.Get(ctx, recountKey(requestID), &result)
	if errors.Is(err, ErrCacheMiss) {
		return nil, errors.New(errors.ErrCodeRecountNotFound, "recount result not found")
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// sourceCacheFallbackTTL guards against a zero TTL reaching the constructor;
// wiring only builds a SourceCache when an explicit TTL is configured.
const sourceCacheFallbackTTL = time.Minute

// SourceCache holds validated upstream registry responses for a short TTL,
// keyed by the full lookup URL.  A burst of lookups for the same candidate
// then costs one registry round-trip instead of one per request.  Values are
// opaque bytes; the registry layer owns parsing.
type SourceCache struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
}

func NewSourceCache(client *Client, log logging.Logger, prefix string, ttl time.Duration) *SourceCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}
	if ttl <= 0 {
		ttl = sourceCacheFallbackTTL
	}
	return &SourceCache{
		client: client,
		logger: log.Named("sourcecache"),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *SourceCache) key(lookupURL string) string {
	return s.prefix + "source:" + lookupURL
}

// GetBody is best-effort: any failure reads as a miss so the caller falls
// through to a live registry call.
func (s *SourceCache) GetBody(ctx context.Context, lookupURL string) ([]byte, bool) {
	data, err := s.client.Get(ctx, s.key(lookupURL)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("source cache read failed", logging.String("url", lookupURL), logging.Err(err))
		return nil, false
	}
	return data, true
}

// SetBody is best-effort: failures are logged, never surfaced.
func (s *SourceCache) SetBody(ctx context.Context, lookupURL string, body []byte) {
	if err := s.client.Set(ctx, s.key(lookupURL), body, s.ttl).Err(); err != nil {
		s.logger.Warn("source cache write failed", logging.String("url", lookupURL), logging.Err(err))
	}
}
