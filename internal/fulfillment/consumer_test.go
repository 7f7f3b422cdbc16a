package fulfillment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
)

func approval(appointmentID string) []byte {
	return []byte(fmt.Sprintf(`{"event":"medication_request.approved","version":1,"data":{"medication_request_id":"mr-1","appointment_id":%s}}`, appointmentID))
}

func TestConsumerHandle(t *testing.T) {
	f := newFakeCompleter()
	c := NewConsumer(NewBridge(f, zerolog.Nop()), nil, zerolog.Nop())
	id := f.add(appointment.StatusConfirmed)

	tests := []struct {
		name        string
		key         string
		body        []byte
		wantAck     bool
		wantRequeue bool
	}{
		{"completes appointment", RKMedicationRequestApproved, approval(`"` + id.String() + `"`), true, false},
		{"redelivery", RKMedicationRequestApproved, approval(`"` + id.String() + `"`), true, false},
		{"no appointment", RKMedicationRequestApproved, approval(`null`), true, false},
		{"unknown appointment", RKMedicationRequestApproved, approval(`"2b1c33a4-3f0e-4d6a-9b7e-1f6f0d2c9a11"`), true, false},
		{"malformed json", RKMedicationRequestApproved, []byte(`{"data":`), false, false},
		{"malformed id", RKMedicationRequestApproved, approval(`"not-a-uuid"`), false, false},
		{"other routing key", "medication_request.rejected", []byte(`garbage`), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack, requeue := c.handle(context.Background(), tt.key, tt.body)
			if ack != tt.wantAck || requeue != tt.wantRequeue {
				t.Errorf("handle() = (%v, %v), want (%v, %v)", ack, requeue, tt.wantAck, tt.wantRequeue)
			}
		})
	}

	if f.statuses[id] != appointment.StatusCompleted {
		t.Errorf("expected completed, got %s", f.statuses[id])
	}
}

func TestConsumerHandle_RequeuesStorageFailure(t *testing.T) {
	f := newFakeCompleter()
	f.err = errors.New("connection reset")
	c := NewConsumer(NewBridge(f, zerolog.Nop()), nil, zerolog.Nop())

	ack, requeue := c.handle(context.Background(), RKMedicationRequestApproved, approval(`"2b1c33a4-3f0e-4d6a-9b7e-1f6f0d2c9a11"`))
	if ack || !requeue {
		t.Errorf("handle() = (%v, %v), want nack with requeue", ack, requeue)
	}
}

type chanDeliveries chan amqp.Delivery

func (c chanDeliveries) Deliveries(context.Context, string) (<-chan amqp.Delivery, error) {
	return c, nil
}

// brokenChannel settles nothing, as after the AMQP channel has closed.
type brokenChannel struct {
	acks, nacks int
	requeued    []bool
}

func (b *brokenChannel) Ack(uint64, bool) error {
	b.acks++
	return amqp.ErrClosed
}

func (b *brokenChannel) Nack(_ uint64, _ bool, requeue bool) error {
	b.nacks++
	b.requeued = append(b.requeued, requeue)
	return amqp.ErrClosed
}

func (b *brokenChannel) Reject(uint64, bool) error { return amqp.ErrClosed }

func TestConsumerRun_LogsSettleFailures(t *testing.T) {
	f := newFakeCompleter()
	id := f.add(appointment.StatusPending)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.WarnLevel)

	ch := &brokenChannel{}
	msgs := make(chanDeliveries, 2)
	msgs <- amqp.Delivery{Acknowledger: ch, DeliveryTag: 1, RoutingKey: RKMedicationRequestApproved, Body: approval(`"` + id.String() + `"`)}
	msgs <- amqp.Delivery{Acknowledger: ch, DeliveryTag: 2, RoutingKey: RKMedicationRequestApproved, Body: []byte(`{"data":`)}
	close(msgs)

	c := NewConsumer(NewBridge(f, zerolog.Nop()), msgs, logger)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the delivery channel closed")
	}

	if ch.acks != 1 || ch.nacks != 1 {
		t.Fatalf("expected 1 ack and 1 nack, got %d and %d", ch.acks, ch.nacks)
	}
	if len(ch.requeued) != 1 || ch.requeued[0] {
		t.Errorf("malformed message should be nacked without requeue, got %v", ch.requeued)
	}

	out := buf.String()
	for _, want := range []string{`"message":"ack failed"`, `"message":"nack failed"`, `"level":"warn"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
	if f.statuses[id] != appointment.StatusCompleted {
		t.Errorf("expected completed, got %s", f.statuses[id])
	}
}
