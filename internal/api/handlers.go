package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduler/internal/auth"
	"github.com/clinicore/clinic-scheduler/internal/schedule"
)

var validate = validator.New()

func createAppointmentHandler(svc *schedule.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_credential", "request has no verified identity")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		practitionerID, _ := uuid.Parse(req.PractitionerID)
		patientID, _ := uuid.Parse(req.PatientID)

		slot := schedule.TimeSlot{
			PractitionerID: practitionerID,
			Start:          req.Start,
			Duration:       time.Duration(req.DurationMinutes) * time.Minute,
		}

		appt, err := svc.Book(r.Context(), identity, patientID, slot)
		if err != nil {
			handleScheduleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *schedule.Service, log *zap.Logger) http.HandlerFunc {
	return transitionHandler(svc.Cancel, log)
}

func completeAppointmentHandler(svc *schedule.Service, log *zap.Logger) http.HandlerFunc {
	return transitionHandler(svc.Complete, log)
}

func transitionHandler(transition func(ctx context.Context, id auth.Identity, appointmentID uuid.UUID) (*schedule.Appointment, error), log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_credential", "request has no verified identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := transition(r.Context(), identity, id)
		if err != nil {
			handleScheduleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *schedule.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_credential", "request has no verified identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), identity, id)
		if err != nil {
			handleScheduleError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *schedule.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_credential", "request has no verified identity")
			return
		}

		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		var (
			appts []schedule.Appointment
			err   error
		)
		switch {
		case r.URL.Query().Get("practitioner_id") != "":
			practitionerID, perr := uuid.Parse(r.URL.Query().Get("practitioner_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByPractitioner(r.Context(), identity, practitionerID, limit, offset)
		case r.URL.Query().Get("patient_id") != "":
			patientID, perr := uuid.Parse(r.URL.Query().Get("patient_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByPatient(r.Context(), identity, patientID, limit, offset)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "practitioner_id or patient_id is required")
			return
		}
		if err != nil {
			handleScheduleError(w, r, log, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// issueTokenHandler mints a credential for a known subject/role pair. Real
// deployments issue credentials from an identity provider; this endpoint
// exists for development and the load simulator and is not mounted in prod.
func issueTokenHandler(authority *auth.TokenAuthority, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IssueTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		subject, _ := uuid.Parse(req.Subject)
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
			return
		}

		now := time.Now()
		token, err := authority.Issue(subject, role, now)
		if err != nil {
			log.Error("issue credential failed",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}

		writeJSON(w, http.StatusOK, IssueTokenResponse{
			Token:     token,
			ExpiresAt: now.Add(authority.TTL()),
		})
	}
}

func handleScheduleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, schedule.ErrSlotInPast),
		errors.Is(err, schedule.ErrOutsideWorkingHours),
		errors.Is(err, schedule.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, schedule.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, schedule.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, schedule.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "practitioner_busy", "practitioner is being booked, please retry shortly")
	default:
		// Wrapped store and driver messages stay in the logs, not in the
		// response body.
		log.Error("unhandled scheduling error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
