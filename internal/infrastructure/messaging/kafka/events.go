package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molbayes/pkg/errors"
)

const (
	TopicModelEvents = "molbayes.model.events"

	EventModelTrained   = "model.trained"
	EventModelValidated = "model.validated"
	EventModelDeleted   = "model.deleted"

	schemaVersion = "v1"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type ModelTrainedPayload struct {
	ModelID         string    `json:"model_id"`
	Kind            string    `json:"kind"`
	Folding         int       `json:"folding"`
	TrainingSize    int       `json:"training_size"`
	TrainingActives int       `json:"training_actives"`
	Contributions   int       `json:"contributions"`
	LowThreshold    float64   `json:"low_threshold"`
	HighThreshold   float64   `json:"high_threshold"`
	TrainedAt       time.Time `json:"trained_at"`
}

// ModelValidatedPayload carries AUC as a pointer because JSON has no NaN.
type ModelValidatedPayload struct {
	ModelID     string    `json:"model_id"`
	Validation  string    `json:"validation"`
	AUC         *float64  `json:"auc"`
	TP          int       `json:"tp"`
	FP          int       `json:"fp"`
	TN          int       `json:"tn"`
	FN          int       `json:"fn"`
	ValidatedAt time.Time `json:"validated_at"`
}

type ModelDeletedPayload struct {
	ModelID   string    `json:"model_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, target)
}

// ToMessage keys the record by key so events for one model stay ordered.
func (e *EventEnvelope) ToMessage(topic, key string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func DecodeEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.InvalidParam("empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// ModelEventPublisher announces model lifecycle events.
type ModelEventPublisher interface {
	Publish(ctx context.Context, eventType, modelID string, payload interface{}) error
	Close() error
}

type publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
	Close() error
}

type kafkaModelEventPublisher struct {
	producer publisher
	topic    string
	source   string
	logger   logging.Logger
}

func NewModelEventPublisher(producer *Producer, topic, source string, logger logging.Logger) ModelEventPublisher {
	if topic == "" {
		topic = TopicModelEvents
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &kafkaModelEventPublisher{producer: producer, topic: topic, source: source, logger: logger}
}

func (p *kafkaModelEventPublisher) Publish(ctx context.Context, eventType, modelID string, payload interface{}) error {
	env, err := NewEventEnvelope(eventType, p.source, payload)
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"model_id": modelID}
	msg, err := env.ToMessage(p.topic, modelID)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug("model event published",
		logging.String("event_type", eventType),
		logging.String("model_id", modelID),
		logging.String("event_id", env.EventID))
	return nil
}

func (p *kafkaModelEventPublisher) Close() error {
	return p.producer.Close()
}
