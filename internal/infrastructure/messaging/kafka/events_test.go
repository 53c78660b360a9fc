package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/molbayes/pkg/errors"
)

func TestNewEventEnvelope(t *testing.T) {
	payload := ModelTrainedPayload{ModelID: "m1", Kind: "ECFP6", TrainingSize: 10, TrainingActives: 4}
	env, err := NewEventEnvelope(EventModelTrained, "molbayes", payload)
	require.NoError(t, err)

	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
	assert.Equal(t, "v1", env.SchemaVersion)
	assert.Equal(t, time.UTC, env.Timestamp.Location())

	var back ModelTrainedPayload
	require.NoError(t, env.DecodePayload(&back))
	assert.Equal(t, payload, back)

	_, err = NewEventEnvelope(EventModelTrained, "molbayes", func() {})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSerialization))
}

func TestEnvelope_ToMessageAndDecode(t *testing.T) {
	auc := 0.75
	env, err := NewEventEnvelope(EventModelValidated, "molbayes", ModelValidatedPayload{ModelID: "m1", Validation: "five-fold", AUC: &auc})
	require.NoError(t, err)

	msg, err := env.ToMessage(TopicModelEvents, "m1")
	require.NoError(t, err)
	assert.Equal(t, TopicModelEvents, msg.Topic)
	assert.Equal(t, []byte("m1"), msg.Key)
	assert.Equal(t, EventModelValidated, msg.Headers["event_type"])

	decoded, err := DecodeEnvelope(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	var p ModelValidatedPayload
	require.NoError(t, decoded.DecodePayload(&p))
	require.NotNil(t, p.AUC)
	assert.Equal(t, 0.75, *p.AUC)

	_, err = DecodeEnvelope(nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
	_, err = DecodeEnvelope([]byte("{"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSerialization))
}

func TestValidatedPayload_NilAUCEncodesNull(t *testing.T) {
	data, err := json.Marshal(ModelValidatedPayload{ModelID: "m1"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"auc":null`)
}

func TestModelEventPublisher_Publish(t *testing.T) {
	w := new(MockWriter)
	var written kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		written = args.Get(1).([]kafka.Message)[0]
	}).Return(nil)
	w.On("Close").Return(nil)

	pub := NewModelEventPublisher(NewProducerWithWriter(w, ProducerConfig{Brokers: []string{"b"}}, nil), "", "molbayes-cli", nil)
	require.NoError(t, pub.Publish(context.Background(), EventModelDeleted, "m9", ModelDeletedPayload{ModelID: "m9"}))

	assert.Equal(t, TopicModelEvents, written.Topic)
	assert.Equal(t, "m9", string(written.Key))
	env, err := DecodeEnvelope(written.Value)
	require.NoError(t, err)
	assert.Equal(t, EventModelDeleted, env.EventType)
	assert.Equal(t, "molbayes-cli", env.Source)
	assert.Equal(t, "m9", env.Metadata["model_id"])

	require.NoError(t, pub.Close())
	w.AssertExpectations(t)
}

func TestModelEventPublisher_PropagatesFailure(t *testing.T) {
	w := new(MockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(assert.AnError)
	pub := NewModelEventPublisher(NewProducerWithWriter(w, ProducerConfig{Brokers: []string{"b"}}, nil), "custom", "molbayes", nil)

	err := pub.Publish(context.Background(), EventModelTrained, "m1", ModelTrainedPayload{ModelID: "m1"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMessaging))
}
