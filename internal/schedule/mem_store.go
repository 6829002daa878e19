package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory reference implementation of Store. It backs the
// api-server's memory mode and the test suite; PgStore is the durable
// implementation.
type MemStore struct {
	mu            sync.RWMutex
	practitioners map[uuid.UUID]Practitioner
	patients      map[uuid.UUID]Patient
	appointments  map[uuid.UUID]Appointment
	events        []EventLog
	now           func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		practitioners: make(map[uuid.UUID]Practitioner),
		patients:      make(map[uuid.UUID]Patient),
		appointments:  make(map[uuid.UUID]Appointment),
		now:           time.Now,
	}
}

// PutPractitioner adds or replaces a directory record.
func (m *MemStore) PutPractitioner(p Practitioner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	p.UpdatedAt = m.now()
	m.practitioners[p.ID] = p
}

// PutPatient adds or replaces a directory record.
func (m *MemStore) PutPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	p.UpdatedAt = m.now()
	m.patients[p.ID] = p
}

func (m *MemStore) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (m *MemStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemStore) CreateScheduledAppointment(ctx context.Context, patientID uuid.UUID, slot TimeSlot) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	appt := Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		Slot:      slot,
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.appointments[appt.ID] = appt
	return &appt, nil
}

func (m *MemStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = m.now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemStore) ListScheduledByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Appointment
	for _, a := range m.appointments {
		if a.Slot.PractitionerID == practitionerID && a.Status == StatusScheduled {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot.Start.Before(result[j].Slot.Start)
	})
	return result, nil
}

func (m *MemStore) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.list(func(a Appointment) bool {
		return a.Slot.PractitionerID == practitionerID
	}, limit, offset)
}

func (m *MemStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.list(func(a Appointment) bool {
		return a.PatientID == patientID
	}, limit, offset)
}

func (m *MemStore) list(match func(Appointment) bool, limit, offset int) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Appointment
	for _, a := range m.appointments {
		if match(a) {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Slot.Start.After(all[j].Slot.Start)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemStore) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded audit events, for tests.
func (m *MemStore) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}
