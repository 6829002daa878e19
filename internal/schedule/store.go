package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// Directory resolves clinic directory records. The directory is owned
// elsewhere; scheduling only needs existence and working hours.
type Directory interface {
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// Store is the durable system of record for appointments. The
// AvailabilityIndex is a projection of it and is rebuilt from
// ListScheduledByPractitioner.
type Store interface {
	Directory

	CreateScheduledAppointment(ctx context.Context, patientID uuid.UUID, slot TimeSlot) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateAppointmentStatus performs a compare-and-swap on the status
	// column and returns ErrAppointmentNotFound when no row matches
	// (unknown id or status already moved on).
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// ListScheduledByPractitioner returns every appointment still in
	// StatusScheduled for the practitioner, ordered by slot start.
	ListScheduledByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error)

	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
