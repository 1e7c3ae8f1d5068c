package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/turtacn/ipscope/internal/application/aggregation"
	"github.com/turtacn/ipscope/internal/config"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/internal/infrastructure/registry"
	"github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

var (
	_ aggregation.ResultCache = (*ResultStore)(nil)
	_ registry.BodyCache      = (*SourceCache)(nil)
)

type sampleValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StoreSuite drives the read paths against a command mock.
type StoreSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	store *Store
}

func (s *StoreSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	client := &Client{rdb: db, logger: logging.NewNopLogger()}
	s.store = NewStore(client, logging.NewNopLogger(), WithPrefix("test:"))
}

func (s *StoreSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *StoreSuite) TestGet_Hit() {
	want := sampleValue{Name: "acme", Count: 3}
	data, err := json.Marshal(want)
	s.Require().NoError(err)
	s.mock.ExpectGet("test:k1").SetVal(string(data))

	var got sampleValue
	s.Require().NoError(s.store.Get(context.Background(), "k1", &got))
	s.Equal(want, got)
}

func (s *StoreSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:absent").RedisNil()

	var got sampleValue
	err := s.store.Get(context.Background(), "absent", &got)
	s.ErrorIs(err, ErrCacheMiss)
}

func (s *StoreSuite) TestGet_TransportError() {
	s.mock.ExpectGet("test:k1").SetErr(assert.AnError)

	var got sampleValue
	err := s.store.Get(context.Background(), "k1", &got)
	s.Require().Error(err)
	s.False(errors.Is(err, ErrCacheMiss))
	s.True(errors.IsCode(err, errors.ErrCodeCacheError))
}

func (s *StoreSuite) TestGet_CorruptValue() {
	s.mock.ExpectGet("test:k1").SetVal("{not json")

	var got sampleValue
	err := s.store.Get(context.Background(), "k1", &got)
	s.True(errors.IsCode(err, errors.ErrCodeSerialization))
}

func (s *StoreSuite) TestDelete_PrefixesEveryKey() {
	s.mock.ExpectDel("test:a", "test:b").SetVal(2)

	s.NoError(s.store.Delete(context.Background(), "a", "b"))
}

func (s *StoreSuite) TestDelete_NoKeysIsNoop() {
	s.NoError(s.store.Delete(context.Background()))
}

func (s *StoreSuite) TestExists() {
	s.mock.ExpectExists("test:k1").SetVal(1)
	ok, err := s.store.Exists(context.Background(), "k1")
	s.NoError(err)
	s.True(ok)

	s.mock.ExpectExists("test:k2").SetVal(0)
	ok, err = s.store.Exists(context.Background(), "k2")
	s.NoError(err)
	s.False(ok)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func TestStore_SetAppliesJitteredTTL(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	store := NewStore(client, logging.NewNopLogger(), WithPrefix("test:"))

	require.NoError(t, store.Set(context.Background(), "k1", sampleValue{Name: "acme"}, 10*time.Minute))

	ttl := mr.TTL("test:k1")
	assert.Greater(t, ttl, 8*time.Minute)
	assert.Less(t, ttl, 12*time.Minute)
}

func TestStore_SetZeroTTLUsesDefault(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	store := NewStore(client, logging.NewNopLogger(), WithPrefix("test:"), WithDefaultTTL(time.Hour))

	require.NoError(t, store.Set(context.Background(), "k1", sampleValue{}, 0))

	ttl := mr.TTL("test:k1")
	assert.Greater(t, ttl, 48*time.Minute)
	assert.Less(t, ttl, 72*time.Minute)
}

func TestStore_RoundTrip(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	store := NewStore(client, logging.NewNopLogger())

	want := sampleValue{Name: "acme", Count: 7}
	require.NoError(t, store.Set(context.Background(), "rt", want, time.Minute))

	var got sampleValue
	require.NoError(t, store.Get(context.Background(), "rt", &got))
	assert.Equal(t, want, got)
}

func newTestResultStore(t *testing.T) (*ResultStore, *Client, *miniredis.Miniredis) {
	t.Helper()
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	store := NewStore(client, logging.NewNopLogger(), WithPrefix("ipscope:"))
	rs := NewResultStore(store, config.CacheConfig{
		Enabled:    true,
		ResultTTL:  15 * time.Minute,
		RecountTTL: 24 * time.Hour,
	}, logging.NewNopLogger())
	return rs, client, mr
}

func TestResultStore_SetAndGetResult(t *testing.T) {
	rs, _, _ := newTestResultStore(t)
	ctx := context.Background()

	want := &ipactivity.AggregateResult{
		AssigneeQueried: "Acme",
		TriedAssignees:  []string{"Acme"},
		Patents:         3,
		Trademarks:      2,
	}
	rs.SetResult(ctx, "aggregate:Acme|false", want)

	got, ok := rs.GetResult(ctx, "aggregate:Acme|false")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestResultStore_GetResultMiss(t *testing.T) {
	rs, _, _ := newTestResultStore(t)

	got, ok := rs.GetResult(context.Background(), "aggregate:Nobody|true")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestResultStore_GetResultBestEffortOnFailure(t *testing.T) {
	rs, client, _ := newTestResultStore(t)
	require.NoError(t, client.Close())

	got, ok := rs.GetResult(context.Background(), "aggregate:Acme|false")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestResultStore_SetResultBestEffortOnFailure(t *testing.T) {
	rs, client, _ := newTestResultStore(t)
	require.NoError(t, client.Close())

	// must not panic or surface the failure
	rs.SetResult(context.Background(), "aggregate:Acme|false", &ipactivity.AggregateResult{})
}

func TestResultStore_SaveAndGetRecount(t *testing.T) {
	rs, _, mr := newTestResultStore(t)
	ctx := context.Background()

	want := &ipactivity.RecountResult{
		RequestID:   "req-123",
		Assignee:    "Acme",
		TryVariants: true,
		Result:      ipactivity.AggregateResult{Patents: 5},
		CompletedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		DurationMs:  820,
	}
	require.NoError(t, rs.SaveRecount(ctx, want))

	got, err := rs.GetRecount(ctx, "req-123")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// recount results live much longer than the read cache
	ttl := mr.TTL("ipscope:recount:req-123")
	assert.Greater(t, ttl, 21*time.Hour)
}

func TestResultStore_GetRecountNotFound(t *testing.T) {
	rs, _, _ := newTestResultStore(t)

	_, err := rs.GetRecount(context.Background(), "unknown")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecountNotFound))
}

func TestSourceCache_RoundTrip(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	sc := NewSourceCache(client, logging.NewNopLogger(), "ipscope:", time.Minute)
	ctx := context.Background()

	const lookupURL = "https://registry.example/patents/query?q=Acme"

	_, ok := sc.GetBody(ctx, lookupURL)
	require.False(t, ok)

	body := []byte(`{"patents":[{"patentNumber":"A1"}],"total":1}`)
	sc.SetBody(ctx, lookupURL, body)

	got, ok := sc.GetBody(ctx, lookupURL)
	require.True(t, ok)
	assert.Equal(t, body, got)

	// raw bytes, fixed TTL, no jitter
	assert.Equal(t, time.Minute, mr.TTL("ipscope:source:"+lookupURL))
}

func TestSourceCache_EntriesExpire(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	sc := NewSourceCache(client, logging.NewNopLogger(), "ipscope:", time.Minute)
	ctx := context.Background()

	sc.SetBody(ctx, "u1", []byte(`{}`))
	mr.FastForward(2 * time.Minute)

	_, ok := sc.GetBody(ctx, "u1")
	assert.False(t, ok)
}

func TestSourceCache_BestEffortOnFailure(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	sc := NewSourceCache(client, logging.NewNopLogger(), "ipscope:", time.Minute)
	require.NoError(t, client.Close())

	// neither call may panic or surface the broken connection
	sc.SetBody(context.Background(), "u1", []byte(`{}`))
	_, ok := sc.GetBody(context.Background(), "u1")
	assert.False(t, ok)
}
