// Package kafka carries the asynchronous recount pipeline: envelope-framed
// events on a small fixed topic set, a producer with delivery accounting, and
// a consumer group with retry and dead-letter handling.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/pkg/errors"
)

// Recount pipeline topics.
const (
	// TopicRecountRequested carries accepted recount submissions to the
	// worker pool.
	TopicRecountRequested = "ipscope.recount.requested"
	// TopicRecountCompleted announces finished recounts for downstream
	// consumers (cache warmers, audit).
	TopicRecountCompleted = "ipscope.recount.completed"
	// TopicRecountDeadLetter receives requests the worker gave up on.
	TopicRecountDeadLetter = "ipscope.recount.dlq"
)

// Event types carried inside envelopes.
const (
	EventTypeRecountRequested = "recount.requested"
	EventTypeRecountCompleted = "recount.completed"
)

// EventEnvelope frames every message on the pipeline.  Payload stays opaque
// until a consumer that knows the event type decodes it.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	TraceID       string            `json:"trace_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RecountRequestedPayload is the body of a recount.requested event.
type RecountRequestedPayload struct {
	RequestID   string    `json:"request_id"`
	Assignee    string    `json:"assignee"`
	TryVariants bool      `json:"try_variants"`
	RequestedAt time.Time `json:"requested_at"`
}

// RecountCompletedPayload is the body of a recount.completed event.  It
// carries the headline counts; the full result lives in the result store
// under the request ID.
type RecountCompletedPayload struct {
	RequestID   string    `json:"request_id"`
	Assignee    string    `json:"assignee"`
	TryVariants bool      `json:"try_variants"`
	Patents     int       `json:"patents"`
	Trademarks  int       `json:"trademarks"`
	PendingApps int       `json:"pending_apps"`
	DurationMs  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewEventEnvelope wraps payload into a fresh envelope with a generated event
// ID and the current UTC time.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeEventInvalid, "event envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

// ToMessage serialises the envelope into a producer message for topic.  The
// caller sets the message key when partition affinity matters.
func (e *EventEnvelope) ToMessage(topic string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	return &ProducerMessage{
		Topic:     topic,
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

// MessageToEventEnvelope parses a consumed message back into an envelope.
func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeEventInvalid, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal event envelope")
	}
	return &env, nil
}

// TopicConfig describes one topic to ensure at startup.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
}

// ConnInterface abstracts the kafka controller connection for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	DeleteTopics(topics ...string) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates and inspects the pipeline topics.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials the first broker for topic administration.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka broker")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: logger.Named("kafka.topics")}, nil
}

// CreateTopic ensures the topic exists.  An already-existing topic is not an
// error.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 {
		return errors.New(errors.ErrCodeValidation, "topic partitions must be positive")
	}
	if cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "topic replication factor must be positive")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries,
			kafka.ConfigEntry{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs)})
	}
	if cfg.CleanupPolicy != "" {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries,
			kafka.ConfigEntry{ConfigName: "cleanup.policy", ConfigValue: cfg.CleanupPolicy})
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		// brokers race topic creation during rolling deploys
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create topic "+cfg.Name)
	}
	m.logger.Info("topic ensured", logging.String("topic", cfg.Name), logging.Int("partitions", cfg.NumPartitions))
	return nil
}

// DeleteTopic removes a topic.
func (m *TopicManager) DeleteTopic(ctx context.Context, name string) error {
	if err := m.conn.DeleteTopics(name); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to delete topic "+name)
	}
	m.logger.Warn("topic deleted", logging.String("topic", name))
	return nil
}

// TopicExists reports whether the topic has at least one partition.
func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

// ListTopics returns the distinct topic names visible on the broker.
func (m *TopicManager) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := m.conn.ReadPartitions()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to read partitions")
	}
	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

// EnsureTopics creates every topic in the list that does not exist yet.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the controller connection.
func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// Ping dials brokers in order until one answers.  It backs readiness probes,
// so it proves broker connectivity only, not topic or group health.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return errors.Wrap(lastErr, errors.ErrCodeExternalService, "no kafka broker reachable")
}

// PipelineTopics returns the topic set of the recount pipeline with the given
// sizing.  Completed events are short-lived because the authoritative result
// sits in the result store; dead letters stick around for operators.
func PipelineTopics(numPartitions, replicationFactor int) []TopicConfig {
	if numPartitions <= 0 {
		numPartitions = 3
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	return []TopicConfig{
		{Name: TopicRecountRequested, NumPartitions: numPartitions, ReplicationFactor: replicationFactor, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: TopicRecountCompleted, NumPartitions: numPartitions, ReplicationFactor: replicationFactor, RetentionMs: 24 * 3600 * 1000},
		{Name: TopicRecountDeadLetter, NumPartitions: 1, ReplicationFactor: replicationFactor, RetentionMs: 30 * 24 * 3600 * 1000},
	}
}
