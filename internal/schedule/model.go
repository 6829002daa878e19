package schedule

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Practitioner is a clinic directory record. Working hours are expressed as
// minutes from midnight and apply to every day; scheduling reads them but
// never mutates them.
type Practitioner struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	WorkdayStartMin int
	WorkdayEndMin   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CoversSlot reports whether the slot falls entirely inside the
// practitioner's daily working window. A slot ending exactly at the window's
// end is inside it.
func (p *Practitioner) CoversSlot(slot TimeSlot) bool {
	start := slot.Start
	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + int(slot.Duration/time.Minute)
	return startMin >= p.WorkdayStartMin && endMin <= p.WorkdayEndMin
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeSlot is a practitioner-scoped half-open interval
// [Start, Start+Duration). Two slots for the same practitioner conflict iff
// their intervals overlap; touching endpoints do not overlap.
type TimeSlot struct {
	PractitionerID uuid.UUID
	Start          time.Time
	Duration       time.Duration
}

func (s TimeSlot) End() time.Time {
	return s.Start.Add(s.Duration)
}

func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start.Before(other.End()) && other.Start.Before(s.End())
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Slot      TimeSlot
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
