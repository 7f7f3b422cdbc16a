package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
)

// Completer completes an appointment unless it is already terminal.
// appointment.Service satisfies it.
type Completer interface {
	CompleteIfActive(ctx context.Context, id uuid.UUID) (*appointment.Appointment, bool, error)
}

// Bridge cascades pharmacy approvals into appointment completion.
type Bridge struct {
	appointments Completer
	logger       zerolog.Logger
	tracer       trace.Tracer
}

func NewBridge(appointments Completer, logger zerolog.Logger) *Bridge {
	return &Bridge{
		appointments: appointments,
		logger:       logger.With().Str("component", "fulfillment").Logger(),
		tracer:       otel.Tracer("github.com/hackgods/hospital-scheduling/internal/fulfillment"),
	}
}

// OnMedicationRequestApproved completes the appointment a medication request
// was raised from. Requests without an appointment, unknown appointments and
// appointments that are already completed or cancelled are left alone, so
// redelivered approvals are harmless. Only storage failures are returned.
func (b *Bridge) OnMedicationRequestApproved(ctx context.Context, appointmentID *uuid.UUID) error {
	if appointmentID == nil || *appointmentID == uuid.Nil {
		return nil
	}

	ctx, span := b.tracer.Start(ctx, "fulfillment.OnMedicationRequestApproved",
		trace.WithAttributes(attribute.String("appointment.id", appointmentID.String())))
	defer span.End()

	appt, changed, err := b.appointments.CompleteIfActive(ctx, *appointmentID)
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		b.logger.Warn().Str("appointment_id", appointmentID.String()).Msg("approved medication request references unknown appointment")
		return nil
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("complete appointment %s: %w", appointmentID, err)
	case !changed:
		b.logger.Debug().Str("appointment_id", appointmentID.String()).Msg("appointment already terminal")
		return nil
	}

	span.SetAttributes(attribute.Bool("appointment.completed", true))
	b.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("booking_no", appt.BookingNo).
		Msg("appointment completed by medication approval")
	return nil
}
