package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduler/internal/schedule"
)

type CreateAppointmentRequest struct {
	PractitionerID  string    `json:"practitioner_id" validate:"required,uuid"`
	PatientID       string    `json:"patient_id" validate:"required,uuid"`
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PractitionerID  uuid.UUID `json:"practitioner_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PractitionerID:  a.Slot.PractitionerID,
		PatientID:       a.PatientID,
		Start:           a.Slot.Start,
		DurationMinutes: int(a.Slot.Duration / time.Minute),
		Status:          string(a.Status),
	}
}

type IssueTokenRequest struct {
	Subject string `json:"subject" validate:"required,uuid"`
	Role    string `json:"role" validate:"required,oneof=patient doctor admin"`
}

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
