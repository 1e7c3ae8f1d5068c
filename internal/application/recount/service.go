// Package recount runs aggregations asynchronously: submissions become
// events on the recount pipeline, a worker pool consumes them under
// per-request locks, and completed results land in the result store keyed by
// request ID.
package recount

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	kafkainfra "github.com/turtacn/ipscope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// Service accepts recount submissions and serves completed results.
type Service interface {
	// Submit validates the request, assigns a request ID, and puts a
	// recount.requested event on the pipeline.  The receipt comes back
	// before any aggregation work starts.
	Submit(ctx context.Context, req ipactivity.RecountRequest) (*ipactivity.RecountReceipt, error)
	// Get returns the completed recount for a request ID, or a not-found
	// error while the worker is still on it.
	Get(ctx context.Context, requestID string) (*ipactivity.RecountResult, error)
}

// EventPublisher is the producer-side seam; *kafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, msg *kafkainfra.ProducerMessage) error
}

// ResultGetter reads completed recounts; *redis.ResultStore satisfies it.
type ResultGetter interface {
	GetRecount(ctx context.Context, requestID string) (*ipactivity.RecountResult, error)
}

// ServiceOptions carries the dependencies for NewService.
type ServiceOptions struct {
	Producer EventPublisher
	Results  ResultGetter
	Logger   logging.Logger
	// Source names this process in event envelopes, e.g. "apiserver".
	Source string
}

type service struct {
	producer EventPublisher
	results  ResultGetter
	log      logging.Logger
	source   string
}

// NewService validates opts and returns the recount submission service.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Producer == nil {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "recount service requires an event publisher")
	}
	if opts.Results == nil {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "recount service requires a result store")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Source == "" {
		opts.Source = "ipscope"
	}
	return &service{
		producer: opts.Producer,
		results:  opts.Results,
		log:      opts.Logger.Named("recount"),
		source:   opts.Source,
	}, nil
}

func (s *service) Submit(ctx context.Context, req ipactivity.RecountRequest) (*ipactivity.RecountReceipt, error) {
	assignee := strings.TrimSpace(req.Assignee)
	if assignee == "" {
		return nil, apperrors.New(apperrors.ErrCodeEmptyAssignee, "assignee name must not be empty")
	}

	requestID := uuid.New().String()
	now := time.Now().UTC()

	payload := kafkainfra.RecountRequestedPayload{
		RequestID:   requestID,
		Assignee:    assignee,
		TryVariants: req.TryVariants,
		RequestedAt: now,
	}
	env, err := kafkainfra.NewEventEnvelope(kafkainfra.EventTypeRecountRequested, s.source, payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRecountEnqueueFail, "failed to build recount event")
	}
	msg, err := env.ToMessage(kafkainfra.TopicRecountRequested)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRecountEnqueueFail, "failed to frame recount event")
	}
	// key by request ID so redeliveries of one request stay on one partition
	msg.Key = []byte(requestID)

	if err := s.producer.Publish(ctx, msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeRecountEnqueueFail, "failed to enqueue recount")
	}

	s.log.Info("recount enqueued",
		logging.String("request_id", requestID),
		logging.String("assignee", assignee),
		logging.Bool("try_variants", req.TryVariants))

	return &ipactivity.RecountReceipt{
		RequestID:  requestID,
		Status:     ipactivity.RecountStatusQueued,
		EnqueuedAt: now,
	}, nil
}

func (s *service) Get(ctx context.Context, requestID string) (*ipactivity.RecountResult, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "request id must not be empty")
	}
	return s.results.GetRecount(ctx, requestID)
}
