// Package aggregation orchestrates one IP-activity lookup: candidate
// expansion, bounded concurrent fan-out across registries, failure-tolerant
// folding into stable counts, and the per-attempt diagnostic trace.
package aggregation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ipscope/internal/config"
	"github.com/turtacn/ipscope/internal/domain/activity"
	"github.com/turtacn/ipscope/internal/domain/assignee"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/internal/infrastructure/registry"
	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// Service aggregates IP activity for one assignee name.
type Service interface {
	// Aggregate expands baseName into candidates, queries every registry for
	// every candidate, and folds the outcomes into one result.  The only
	// error is an empty baseName; upstream failures are recorded in the
	// result's debug trace instead.  Concurrent calls with the same input
	// collapse into a single upstream pass and share one result, so callers
	// must treat the returned value as read-only.
	Aggregate(ctx context.Context, baseName string, tryVariants bool) (*ipactivity.AggregateResult, error)
}

// MetricsRecorder receives aggregation observations.  The prometheus
// collector implements it; tests substitute recorders or leave it nil.
type MetricsRecorder interface {
	ObserveLookup(source string, ok bool, duration time.Duration)
	ObserveAggregate(duration time.Duration, candidates int)
	ObserveCacheLookup(hit bool)
}

// ResultCache caches whole aggregation results.  Implementations must treat
// both operations as best-effort: a cache failure degrades to a live lookup,
// never to a request failure.
type ResultCache interface {
	GetResult(ctx context.Context, key string) (*ipactivity.AggregateResult, bool)
	SetResult(ctx context.Context, key string, result *ipactivity.AggregateResult)
}

// Options carries the dependencies and tunables for NewService.
type Options struct {
	// Adapters are queried in slice order for every candidate; the order
	// fixes per-candidate trace layout.  Wire them as patents, trademarks,
	// pending.
	Adapters   []registry.Adapter
	Classifier activity.SampleClassifier
	Metrics    MetricsRecorder
	Cache      ResultCache
	Logger     logging.Logger

	MaxConcurrency int
	Timeout        time.Duration
}

type service struct {
	adapters       []registry.Adapter
	classifier     activity.SampleClassifier
	metrics        MetricsRecorder
	cache          ResultCache
	log            logging.Logger
	maxConcurrency int
	timeout        time.Duration

	flights singleflight.Group
}

// NewService validates opts and returns the aggregation service.
func NewService(opts Options) (Service, error) {
	if len(opts.Adapters) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeAggregationFailed, "aggregation requires at least one source adapter")
	}
	if opts.Classifier == nil {
		opts.Classifier = activity.NewKeywordClassifier()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = config.DefaultAggregationMaxConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultAggregationTimeout
	}
	return &service{
		adapters:       opts.Adapters,
		classifier:     opts.Classifier,
		metrics:        opts.Metrics,
		cache:          opts.Cache,
		log:            opts.Logger.Named("aggregation"),
		maxConcurrency: opts.MaxConcurrency,
		timeout:        opts.Timeout,
	}, nil
}

// cacheKey builds the whole-result cache key for one aggregation input.
func cacheKey(name string, tryVariants bool) string {
	return fmt.Sprintf("aggregate:%s|%t", name, tryVariants)
}

func (s *service) Aggregate(ctx context.Context, baseName string, tryVariants bool) (*ipactivity.AggregateResult, error) {
	trimmed := strings.TrimSpace(baseName)
	if trimmed == "" {
		return nil, apperrors.New(apperrors.ErrCodeEmptyAssignee, "assignee name must not be empty")
	}

	key := cacheKey(trimmed, tryVariants)
	if s.cache != nil {
		if cached, ok := s.cache.GetResult(ctx, key); ok {
			s.observeCache(true)
			s.log.Debug("aggregate served from cache", logging.String("assignee", trimmed))
			return cached, nil
		}
		s.observeCache(false)
	}

	// Concurrent requests for the same input collapse into one upstream
	// fan-out; followers share the executor's result.
	v, err, _ := s.flights.Do(key, func() (interface{}, error) {
		result := s.aggregateLive(ctx, trimmed, tryVariants)
		if s.cache != nil {
			s.cache.SetResult(ctx, key, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ipactivity.AggregateResult), nil
}

func (s *service) aggregateLive(ctx context.Context, trimmed string, tryVariants bool) *ipactivity.AggregateResult {
	start := time.Now()
	candidates := assignee.Variations(trimmed, tryVariants)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	grid := s.fanOut(ctx, candidates)

	result := s.fold(trimmed, candidates, grid)

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveAggregate(elapsed, len(candidates))
	}
	s.log.Info("aggregate completed",
		logging.String("assignee", trimmed),
		logging.Bool("try_variants", tryVariants),
		logging.Int("candidates", len(candidates)),
		logging.Int("patents", result.Patents),
		logging.Int("trademarks", result.Trademarks),
		logging.Int("pending_apps", result.PendingApps),
		logging.Duration("duration", elapsed))

	return result
}

// fanOut runs every (candidate, source) lookup on a bounded errgroup and
// returns the attempt grid.  Each goroutine owns exactly one pre-sized cell,
// so no locking is needed and candidate-order attribution is structural.
func (s *service) fanOut(ctx context.Context, candidates []string) [][][]activity.Outcome {
	grid := make([][][]activity.Outcome, len(candidates))
	for ci := range grid {
		grid[ci] = make([][]activity.Outcome, len(s.adapters))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for ci, candidate := range candidates {
		for si, adapter := range s.adapters {
			ci, si, candidate, adapter := ci, si, candidate, adapter
			g.Go(func() error {
				lookupStart := time.Now()
				attempts := adapter.Lookup(gctx, candidate)
				grid[ci][si] = attempts

				if s.metrics != nil {
					final, ok := activity.Final(attempts)
					s.metrics.ObserveLookup(string(adapter.Kind()), ok && final.OK(), time.Since(lookupStart))
				}
				return nil
			})
		}
	}
	// Lookups never return errors; Wait only synchronises completion.
	_ = g.Wait()
	return grid
}

// fold converts the settled grid into the final result: trace in candidate
// order with fixed source order inside each candidate, then the pure count
// folds over accepted outcomes.
func (s *service) fold(trimmed string, candidates []string, grid [][][]activity.Outcome) *ipactivity.AggregateResult {
	trace := activity.NewTrace(len(candidates) * len(s.adapters))
	finals := make(map[ipactivity.SourceKind][]activity.Outcome, len(s.adapters))

	for ci := range grid {
		for si := range grid[ci] {
			attempts := grid[ci][si]
			trace.AddAll(attempts)
			if final, ok := activity.Final(attempts); ok {
				finals[final.Source] = append(finals[final.Source], final)
			}
		}
	}

	classification := classifySamples(finals[ipactivity.SourcePending], s.classifier)

	return &ipactivity.AggregateResult{
		AssigneeQueried: trimmed,
		TriedAssignees:  candidates,
		Patents:         dedupPatentCount(finals[ipactivity.SourcePatents]),
		PendingApps:     sumCounts(finals[ipactivity.SourcePending]),
		PCTApps:         classification.PCTApps,
		ForeignNational: classification.ForeignNational,
		Provisionals:    classification.Provisionals,
		Trademarks:      sumCounts(finals[ipactivity.SourceTrademarks]),
		Debug:           trace.Entries(),
	}
}

func (s *service) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCacheLookup(hit)
	}
}
