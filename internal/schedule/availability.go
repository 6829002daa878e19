package schedule

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type indexEntry struct {
	appointmentID uuid.UUID
	start         time.Time
	end           time.Time
}

type practitionerSlots struct {
	loaded  bool
	entries []indexEntry // ordered by start
}

// AvailabilityIndex tracks, per practitioner, the committed scheduled slots
// and answers overlap queries. It is a cache over the Store, never
// authoritative: practitioners are loaded lazily from the store inside the
// booking critical section and every committed mutation is mirrored here
// before the critical section ends.
type AvailabilityIndex struct {
	mu             sync.RWMutex
	byPractitioner map[uuid.UUID]*practitionerSlots
}

func NewAvailabilityIndex() *AvailabilityIndex {
	return &AvailabilityIndex{
		byPractitioner: make(map[uuid.UUID]*practitionerSlots),
	}
}

// Loaded reports whether the practitioner's scheduled slots have been
// projected from the store.
func (x *AvailabilityIndex) Loaded(practitionerID uuid.UUID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ps, ok := x.byPractitioner[practitionerID]
	return ok && ps.loaded
}

// Rebuild replaces the practitioner's projection with the given scheduled
// appointments and marks it loaded.
func (x *AvailabilityIndex) Rebuild(practitionerID uuid.UUID, appts []Appointment) {
	entries := make([]indexEntry, 0, len(appts))
	for _, a := range appts {
		entries = append(entries, indexEntry{
			appointmentID: a.ID,
			start:         a.Slot.Start,
			end:           a.Slot.End(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].start.Before(entries[j].start)
	})

	x.mu.Lock()
	defer x.mu.Unlock()
	x.byPractitioner[practitionerID] = &practitionerSlots{
		loaded:  true,
		entries: entries,
	}
}

// Conflicts reports whether the slot overlaps any indexed scheduled slot for
// its practitioner. Intervals are half-open, so a slot starting exactly at
// another's end does not conflict.
func (x *AvailabilityIndex) Conflicts(slot TimeSlot) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ps, ok := x.byPractitioner[slot.PractitionerID]
	if !ok {
		return false
	}

	end := slot.End()
	// First entry ending after the candidate's start; only entries from
	// there on can overlap.
	i := sort.Search(len(ps.entries), func(i int) bool {
		return ps.entries[i].end.After(slot.Start)
	})
	for ; i < len(ps.entries); i++ {
		if !ps.entries[i].start.Before(end) {
			break
		}
		return true
	}
	return false
}

// Add inserts a committed scheduled appointment, keeping start order.
func (x *AvailabilityIndex) Add(appt *Appointment) {
	x.mu.Lock()
	defer x.mu.Unlock()

	ps, ok := x.byPractitioner[appt.Slot.PractitionerID]
	if !ok {
		ps = &practitionerSlots{}
		x.byPractitioner[appt.Slot.PractitionerID] = ps
	}

	e := indexEntry{
		appointmentID: appt.ID,
		start:         appt.Slot.Start,
		end:           appt.Slot.End(),
	}
	i := sort.Search(len(ps.entries), func(i int) bool {
		return ps.entries[i].start.After(e.start)
	})
	ps.entries = append(ps.entries, indexEntry{})
	copy(ps.entries[i+1:], ps.entries[i:])
	ps.entries[i] = e
}

// Remove drops the appointment's slot so it becomes bookable again. Removing
// an appointment that was never indexed is a no-op.
func (x *AvailabilityIndex) Remove(practitionerID, appointmentID uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()

	ps, ok := x.byPractitioner[practitionerID]
	if !ok {
		return
	}
	for i, e := range ps.entries {
		if e.appointmentID == appointmentID {
			ps.entries = append(ps.entries[:i], ps.entries[i+1:]...)
			return
		}
	}
}
