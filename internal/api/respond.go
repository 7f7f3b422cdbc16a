package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeAndValidate reads a JSON body into dst and checks its struct tags.
// It writes the 400 response itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", formatValidationError(err))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", e.Field(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, ", ")
}

// httpStatusFor maps a rejection kind to its response status.
func httpStatusFor(kind appointment.Kind) int {
	switch kind {
	case appointment.KindReference:
		return http.StatusNotFound
	case appointment.KindValidation:
		return http.StatusBadRequest
	case appointment.KindConflict, appointment.KindState, appointment.KindConcurrency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders booking engine errors with their reason code and
// any detail payload. Storage faults are logged and reported without their
// cause.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var rej *appointment.Rejection
	if !errors.As(err, &rej) {
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	status := httpStatusFor(rej.Kind)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("reason", rej.Reason).Msg("request failed")
	}

	resp := ErrorResponse{
		Error:              rej.Reason,
		Details:            rej.Detail,
		Windows:            rej.Windows,
		SubstituteDoctorID: rej.SubstituteDoctorID,
	}
	if rej.Capacity > 0 {
		booked, capacity := rej.Booked, rej.Capacity
		resp.Booked = &booked
		resp.Capacity = &capacity
	}
	writeJSON(w, status, resp)
}

// writeRosterError renders roster and leave registry errors.
func writeRosterError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, roster.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, roster.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "roster_not_found", err.Error())
	case errors.Is(err, roster.ErrDuplicateShift):
		writeError(w, http.StatusConflict, "duplicate_shift", err.Error())
	case errors.Is(err, roster.ErrWindowOverlap):
		writeError(w, http.StatusConflict, "window_overlap", err.Error())
	case errors.Is(err, roster.ErrDoctorOnLeave):
		writeError(w, http.StatusConflict, "doctor_on_leave", err.Error())
	case errors.Is(err, roster.ErrLeaveOverlap):
		writeError(w, http.StatusConflict, "leave_overlap", err.Error())
	case errors.Is(err, roster.ErrInvalidShift),
		errors.Is(err, roster.ErrInvalidWindow),
		errors.Is(err, roster.ErrInvalidCapacity),
		errors.Is(err, roster.ErrInvalidEntryStatus),
		errors.Is(err, roster.ErrInvalidLeaveRange),
		errors.Is(err, roster.ErrInvalidLeaveType),
		errors.Is(err, roster.ErrInvalidLeaveStatus),
		errors.Is(err, roster.ErrSubstituteIsSelf),
		errors.Is(err, clock.ErrInvalidTimeOfDay),
		errors.Is(err, clock.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		logger.Error().Err(err).Msg("roster request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
