package fulfillment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/mq"
)

const RKMedicationRequestApproved = "medication_request.approved"

// MedicationRequestApproved is published by the pharmacy workflow when a
// medication request is approved.
type MedicationRequestApproved struct {
	Event   string `json:"event"`
	Version int    `json:"version"`
	Data    struct {
		MedicationRequestID string  `json:"medication_request_id"`
		AppointmentID       *string `json:"appointment_id"`
	} `json:"data"`
}

// Deliveries is the consuming side of a queue. *mq.Consumer satisfies it.
type Deliveries interface {
	Deliveries(ctx context.Context, tag string) (<-chan amqp.Delivery, error)
}

type Consumer struct {
	bridge *Bridge
	source Deliveries
	logger zerolog.Logger
}

func NewConsumer(bridge *Bridge, source Deliveries, logger zerolog.Logger) *Consumer {
	return &Consumer{
		bridge: bridge,
		source: source,
		logger: logger.With().Str("component", "fulfillment-consumer").Logger(),
	}
}

// Run consumes approvals until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.source.Deliveries(ctx, "scheduling-fulfillment")
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			ack, requeue := c.handle(ctx, d.RoutingKey, d.Body)
			c.settle(d, ack, requeue)
		}
	}
}

// acknowledger is the settling half of an amqp.Delivery.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settle acks or nacks one delivery. A failure here usually means the channel
// is gone and the broker will redeliver.
func (c *Consumer) settle(d acknowledger, ack, requeue bool) {
	if ack {
		if err := d.Ack(false); err != nil {
			c.logger.Warn().Err(err).Msg("ack failed")
		}
		return
	}
	if err := d.Nack(false, requeue); err != nil {
		c.logger.Warn().Err(err).Bool("requeue", requeue).Msg("nack failed")
	}
}

// handle processes one message and decides its fate. Malformed messages are
// rejected for dead-lettering; storage failures are requeued.
func (c *Consumer) handle(ctx context.Context, key string, body []byte) (ack, requeue bool) {
	if key != RKMedicationRequestApproved {
		return true, false
	}

	evt, err := mq.Unmarshal[MedicationRequestApproved](body)
	if err != nil {
		c.logger.Error().Err(err).Msg("malformed medication approval")
		return false, false
	}

	var apptID *uuid.UUID
	if raw := evt.Data.AppointmentID; raw != nil && *raw != "" {
		id, err := uuid.Parse(*raw)
		if err != nil {
			c.logger.Error().Err(err).Str("appointment_id", *raw).Msg("malformed appointment id in medication approval")
			return false, false
		}
		apptID = &id
	}

	if err := c.bridge.OnMedicationRequestApproved(ctx, apptID); err != nil {
		c.logger.Error().Err(err).
			Str("medication_request_id", evt.Data.MedicationRequestID).
			Msg("medication approval cascade failed, requeueing")
		return false, true
	}
	return true, false
}
