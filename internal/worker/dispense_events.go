package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/messaging"
)

// EventChannel is the broker channel the outbox processor publishes
// domain events on.
const EventChannel = "clinic.events"

// AppointmentMarker is the slice of the appointment service the
// consumer needs.
type AppointmentMarker interface {
	MarkPrescriptionDispensed(ctx context.Context, id uuid.UUID) error
}

// DispenseEventConsumer reacts to dispensary domain events. The flip of
// an appointment to prescription_dispensed lives here, not in the
// dispensary flow, so the two state machines stay decoupled.
type DispenseEventConsumer struct {
	broker       messaging.Broker
	appointments AppointmentMarker
	logger       *logger.Logger
}

func NewDispenseEventConsumer(broker messaging.Broker, appointments AppointmentMarker, l *logger.Logger) *DispenseEventConsumer {
	return &DispenseEventConsumer{
		broker:       broker,
		appointments: appointments,
		logger:       l,
	}
}

func (c *DispenseEventConsumer) Start(ctx context.Context) error {
	msgs, err := c.broker.Subscribe(ctx, EventChannel)
	if err != nil {
		return err
	}

	c.logger.Info("dispense event consumer started", "channel", EventChannel)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("dispense event consumer stopping")
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *DispenseEventConsumer) handle(ctx context.Context, raw []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Error(err, "failed to decode broker message")
		return
	}

	if msg.Type != model.EventDispenseCreated {
		return
	}

	var evt model.DispenseCreatedEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		c.logger.Error(err, "failed to decode dispense.created payload")
		return
	}
	if evt.AppointmentID == nil {
		return
	}

	if err := c.appointments.MarkPrescriptionDispensed(ctx, *evt.AppointmentID); err != nil {
		c.logger.Error(err, "failed to mark appointment prescription_dispensed",
			"appointment_id", evt.AppointmentID.String(),
			"dispense_id", evt.DispenseID.String(),
		)
		return
	}

	c.logger.Info("appointment marked prescription_dispensed",
		"appointment_id", evt.AppointmentID.String(),
		"dispense_id", evt.DispenseID.String(),
	)
}
