package recount

import (
	"context"
	"time"

	"github.com/turtacn/ipscope/internal/application/aggregation"
	kafkainfra "github.com/turtacn/ipscope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// Locker is one distributed lock instance; *redis.Mutex satisfies it.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// LockFactory builds a fresh lock for one name.  Each handled request gets
// its own instance because lock tokens are per-owner.
type LockFactory func(name string) Locker

// ResultSaver persists completed recounts; *redis.ResultStore satisfies it.
type ResultSaver interface {
	SaveRecount(ctx context.Context, result *ipactivity.RecountResult) error
}

// HandlerMetrics receives recount processing observations; the prometheus
// metrics set satisfies it.
type HandlerMetrics interface {
	ObserveRecount(result string, duration time.Duration)
}

// HandlerOptions carries the dependencies for NewHandler.
type HandlerOptions struct {
	Aggregator aggregation.Service
	Results    ResultSaver
	Producer   EventPublisher
	Locks      LockFactory
	Metrics    HandlerMetrics
	Logger     logging.Logger
	// Source names this process in completed-event envelopes, e.g. "worker".
	Source string
}

// Handler processes recount.requested events: aggregate, persist, announce.
// Offsets commit only after HandleRequested settles, so the pipeline
// redelivers on crash; the per-request lock keeps a redelivered request from
// running twice at once.
type Handler struct {
	aggregator aggregation.Service
	results    ResultSaver
	producer   EventPublisher
	locks      LockFactory
	metrics    HandlerMetrics
	log        logging.Logger
	source     string
}

// NewHandler validates opts and returns the worker-side event handler.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Aggregator == nil {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "recount handler requires an aggregation service")
	}
	if opts.Results == nil {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "recount handler requires a result store")
	}
	if opts.Producer == nil {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "recount handler requires an event publisher")
	}
	if opts.Locks == nil {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "recount handler requires a lock factory")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Source == "" {
		opts.Source = "worker"
	}
	return &Handler{
		aggregator: opts.Aggregator,
		results:    opts.Results,
		producer:   opts.Producer,
		locks:      opts.Locks,
		metrics:    opts.Metrics,
		log:        opts.Logger.Named("recount.handler"),
		source:     opts.Source,
	}, nil
}

// HandleRequested is the consumer handler for the recount.requested topic.
// Returned errors trigger the consumer's retry and dead-letter policy; nil
// commits the offset.
func (h *Handler) HandleRequested(ctx context.Context, msg *kafkainfra.Message) error {
	env, err := kafkainfra.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	if env.EventType != kafkainfra.EventTypeRecountRequested {
		h.log.Warn("unexpected event type, skipping",
			logging.String("event_type", env.EventType),
			logging.String("event_id", env.EventID))
		return nil
	}

	var payload kafkainfra.RecountRequestedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.RequestID == "" {
		return apperrors.New(apperrors.ErrCodeEventInvalid, "recount event has no request id")
	}

	lock := h.locks("recount:" + payload.RequestID)
	acquired, err := lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		// another worker is already on this request; its commit covers us
		h.log.Info("recount already in progress elsewhere, skipping",
			logging.String("request_id", payload.RequestID))
		return nil
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Unlock(unlockCtx); err != nil {
			h.log.Warn("recount lock release failed",
				logging.String("request_id", payload.RequestID),
				logging.Err(err))
		}
	}()

	start := time.Now()
	result, err := h.aggregator.Aggregate(ctx, payload.Assignee, payload.TryVariants)
	if err != nil {
		h.observe("failed", time.Since(start))
		h.log.Error("recount aggregation failed",
			logging.String("request_id", payload.RequestID),
			logging.String("assignee", payload.Assignee),
			logging.Err(err))
		return err
	}
	elapsed := time.Since(start)

	recount := &ipactivity.RecountResult{
		RequestID:   payload.RequestID,
		Assignee:    payload.Assignee,
		TryVariants: payload.TryVariants,
		Result:      *result,
		CompletedAt: time.Now().UTC(),
		DurationMs:  elapsed.Milliseconds(),
	}
	if err := h.results.SaveRecount(ctx, recount); err != nil {
		h.observe("failed", elapsed)
		return err
	}

	if err := h.publishCompleted(ctx, recount); err != nil {
		// the result is saved; redelivery re-aggregates idempotently and
		// retries the announcement
		h.observe("failed", elapsed)
		return err
	}

	h.observe("processed", elapsed)
	h.log.Info("recount completed",
		logging.String("request_id", payload.RequestID),
		logging.String("assignee", payload.Assignee),
		logging.Int("patents", result.Patents),
		logging.Int("trademarks", result.Trademarks),
		logging.Duration("duration", elapsed))
	return nil
}

func (h *Handler) publishCompleted(ctx context.Context, recount *ipactivity.RecountResult) error {
	payload := kafkainfra.RecountCompletedPayload{
		RequestID:   recount.RequestID,
		Assignee:    recount.Assignee,
		TryVariants: recount.TryVariants,
		Patents:     recount.Result.Patents,
		Trademarks:  recount.Result.Trademarks,
		PendingApps: recount.Result.PendingApps,
		DurationMs:  recount.DurationMs,
		CompletedAt: recount.CompletedAt,
	}
	env, err := kafkainfra.NewEventEnvelope(kafkainfra.EventTypeRecountCompleted, h.source, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(kafkainfra.TopicRecountCompleted)
	if err != nil {
		return err
	}
	msg.Key = []byte(recount.RequestID)
	return h.producer.Publish(ctx, msg)
}

func (h *Handler) observe(result string, duration time.Duration) {
	if h.metrics != nil {
		h.metrics.ObserveRecount(result, duration)
	}
}
