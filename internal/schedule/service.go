package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduler/internal/auth"
)

const (
	EventAppointmentScheduled = "APPOINTMENT_SCHEDULED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrSlotInPast          = errors.New("slot starts in the past")
	ErrOutsideWorkingHours = errors.New("slot is outside the practitioner's working hours")
	ErrInvalidDuration     = errors.New("slot duration must be positive")
	ErrSlotConflict        = errors.New("slot overlaps a scheduled appointment")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
)

// Service orchestrates one booking attempt end to end:
// authorize → validate → resolve directory records → reserve atomically →
// persist. Authentication happens upstream; methods receive an already
// verified identity.
type Service struct {
	store       Store
	index       *AvailabilityIndex
	locker      Locker
	guard       *auth.Guard
	log         *zap.Logger
	now         func() time.Time
	sharedStore bool
}

type Option func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSharedStore marks the store as written to by other replicas. The
// availability projection is then rebuilt from the store on every booking,
// inside the practitioner critical section, so commits made elsewhere are
// seen before the overlap check. Without it the projection is maintained
// incrementally, which is only sound when this process is the sole writer.
func WithSharedStore() Option {
	return func(s *Service) { s.sharedStore = true }
}

func NewService(store Store, locker Locker, guard *auth.Guard, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		index:  NewAvailabilityIndex(),
		locker: locker,
		guard:  guard,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book reserves the slot for the patient. Exactly one of any set of
// concurrent overlapping attempts on the same practitioner succeeds; the
// rest observe ErrSlotConflict. Attempts on different practitioners never
// contend with each other.
func (s *Service) Book(ctx context.Context, id auth.Identity, patientID uuid.UUID, slot TimeSlot) (*Appointment, error) {
	if err := s.guard.Authorize(id, auth.ActionBook, auth.ResourceOwners{
		PatientID:      patientID,
		PractitionerID: slot.PractitionerID,
	}); err != nil {
		return nil, err
	}

	now := s.now()
	if slot.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if !slot.Start.After(now) {
		return nil, ErrSlotInPast
	}

	practitioner, err := s.store.GetPractitionerByID(ctx, slot.PractitionerID)
	if err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	if !practitioner.CoversSlot(slot) {
		return nil, ErrOutsideWorkingHours
	}

	if _, err := s.store.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var created *Appointment

	err = s.locker.WithPractitionerLock(ctx, slot.PractitionerID, func(lockCtx context.Context) error {
		if err := s.ensureIndexed(lockCtx, slot.PractitionerID); err != nil {
			return err
		}

		if s.index.Conflicts(slot) {
			return ErrSlotConflict
		}

		appt, err := s.store.CreateScheduledAppointment(lockCtx, patientID, slot)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		s.index.Add(appt)
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentScheduled, map[string]any{
			"practitioner_id": slot.PractitionerID.String(),
			"patient_id":      patientID.String(),
			"start":           slot.Start,
			"duration_min":    int(slot.Duration / time.Minute),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Cancel moves a scheduled appointment to cancelled. Allowed to the owning
// patient, the treating practitioner, or an admin, and only before the slot
// starts. The freed slot becomes bookable as soon as the call returns.
func (s *Service) Cancel(ctx context.Context, id auth.Identity, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.loadAuthorized(ctx, id, appointmentID, auth.ActionCancel)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}
	if !s.now().Before(appt.Slot.Start) {
		return nil, ErrInvalidTransition
	}

	var updated *Appointment
	err = s.locker.WithPractitionerLock(ctx, appt.Slot.PractitionerID, func(lockCtx context.Context) error {
		a, err := s.store.UpdateAppointmentStatus(lockCtx, appointmentID, StatusScheduled, StatusCancelled)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Status moved on between our load and the swap.
				return ErrInvalidTransition
			}
			return fmt.Errorf("cancel appointment: %w", err)
		}
		s.index.Remove(a.Slot.PractitionerID, a.ID)
		updated = a

		s.logEvent(lockCtx, a.ID, EventAppointmentCancelled, map[string]any{
			"by_role": string(id.Role),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Complete moves a scheduled appointment to completed. Only the treating
// practitioner or an admin may do so, and only after the slot has ended.
func (s *Service) Complete(ctx context.Context, id auth.Identity, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.loadAuthorized(ctx, id, appointmentID, auth.ActionComplete)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}
	if s.now().Before(appt.Slot.End()) {
		return nil, ErrInvalidTransition
	}

	var updated *Appointment
	err = s.locker.WithPractitionerLock(ctx, appt.Slot.PractitionerID, func(lockCtx context.Context) error {
		a, err := s.store.UpdateAppointmentStatus(lockCtx, appointmentID, StatusScheduled, StatusCompleted)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("complete appointment: %w", err)
		}
		s.index.Remove(a.Slot.PractitionerID, a.ID)
		updated = a

		s.logEvent(lockCtx, a.ID, EventAppointmentCompleted, map[string]any{
			"by_role": string(id.Role),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Get returns a single appointment visible to the identity.
func (s *Service) Get(ctx context.Context, id auth.Identity, appointmentID uuid.UUID) (*Appointment, error) {
	return s.loadAuthorized(ctx, id, appointmentID, auth.ActionView)
}

// ListByPractitioner returns the practitioner's appointments, newest first.
func (s *Service) ListByPractitioner(ctx context.Context, id auth.Identity, practitionerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if err := s.guard.Authorize(id, auth.ActionView, auth.ResourceOwners{PractitionerID: practitionerID}); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	appts, err := s.store.ListByPractitioner(ctx, practitionerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list by practitioner: %w", err)
	}
	return appts, nil
}

// ListByPatient returns the patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, id auth.Identity, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if err := s.guard.Authorize(id, auth.ActionView, auth.ResourceOwners{PatientID: patientID}); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	appts, err := s.store.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list by patient: %w", err)
	}
	return appts, nil
}

// ensureIndexed projects the practitioner's scheduled slots from the store.
// Called only inside the practitioner's critical section, so the rebuild
// cannot race a concurrent booking for the same practitioner. With a shared
// store the projection is rebuilt on every call; otherwise it is loaded once
// and kept current by this process's own mutations.
func (s *Service) ensureIndexed(ctx context.Context, practitionerID uuid.UUID) error {
	if !s.sharedStore && s.index.Loaded(practitionerID) {
		return nil
	}
	appts, err := s.store.ListScheduledByPractitioner(ctx, practitionerID)
	if err != nil {
		return fmt.Errorf("rebuild availability index: %w", err)
	}
	s.index.Rebuild(practitionerID, appts)
	return nil
}

func (s *Service) loadAuthorized(ctx context.Context, id auth.Identity, appointmentID uuid.UUID, action auth.Action) (*Appointment, error) {
	appt, err := s.store.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := s.guard.Authorize(id, action, auth.ResourceOwners{
		PatientID:      appt.PatientID,
		PractitionerID: appt.Slot.PractitionerID,
	}); err != nil {
		return nil, err
	}
	return appt, nil
}

// logEvent records an audit event; failures are logged and swallowed so
// they never undo a committed booking.
func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload failed",
			zap.String("event_type", eventType),
			zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log failed",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
