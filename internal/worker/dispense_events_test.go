package worker

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/messaging"
)

var testLogger = logger.NewLogger(&logger.Config{
	Level:  logger.ErrorLevel,
	Output: io.Discard,
})

type fakeMarker struct {
	mu     sync.Mutex
	marked []uuid.UUID
}

func (m *fakeMarker) MarkPrescriptionDispensed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, id)
	return nil
}

func (m *fakeMarker) ids() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.marked...)
}

func encode(t *testing.T, msg messaging.Message) []byte {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func TestHandleMarksAppointmentDispensed(t *testing.T) {
	marker := &fakeMarker{}
	consumer := NewDispenseEventConsumer(nil, marker, testLogger)

	aptID := uuid.New()
	raw := encode(t, messaging.Message{
		Type: model.EventDispenseCreated,
		Payload: model.DispenseCreatedEvent{
			DispenseID:    uuid.New(),
			AppointmentID: &aptID,
			PatientID:     uuid.New(),
		},
	})

	consumer.handle(context.Background(), raw)

	require.Len(t, marker.ids(), 1)
	assert.Equal(t, aptID, marker.ids()[0])
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	marker := &fakeMarker{}
	consumer := NewDispenseEventConsumer(nil, marker, testLogger)

	aptID := uuid.New()
	raw := encode(t, messaging.Message{
		Type: model.EventDispenseCancelled,
		Payload: model.DispenseCreatedEvent{
			DispenseID:    uuid.New(),
			AppointmentID: &aptID,
			PatientID:     uuid.New(),
		},
	})

	consumer.handle(context.Background(), raw)
	assert.Empty(t, marker.ids())
}

func TestHandleIgnoresWalkInDispense(t *testing.T) {
	marker := &fakeMarker{}
	consumer := NewDispenseEventConsumer(nil, marker, testLogger)

	// No appointment linked: nothing to flip.
	raw := encode(t, messaging.Message{
		Type: model.EventDispenseCreated,
		Payload: model.DispenseCreatedEvent{
			DispenseID: uuid.New(),
			PatientID:  uuid.New(),
		},
	})

	consumer.handle(context.Background(), raw)
	assert.Empty(t, marker.ids())
}

func TestHandleSkipsMalformedMessages(t *testing.T) {
	marker := &fakeMarker{}
	consumer := NewDispenseEventConsumer(nil, marker, testLogger)

	consumer.handle(context.Background(), []byte("not json"))
	assert.Empty(t, marker.ids())
}
