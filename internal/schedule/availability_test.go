package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func slotAt(practitionerID uuid.UUID, hhmm string, minutes int) TimeSlot {
	start, err := time.Parse("2006-01-02 15:04", "2030-06-03 "+hhmm)
	if err != nil {
		panic(err)
	}
	return TimeSlot{
		PractitionerID: practitionerID,
		Start:          start,
		Duration:       time.Duration(minutes) * time.Minute,
	}
}

func scheduled(slot TimeSlot) *Appointment {
	return &Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Slot:      slot,
		Status:    StatusScheduled,
	}
}

func TestSlotOverlaps(t *testing.T) {
	p := uuid.New()

	tests := []struct {
		name     string
		a, b     TimeSlot
		overlaps bool
	}{
		{"identical", slotAt(p, "10:00", 30), slotAt(p, "10:00", 30), true},
		{"partial overlap", slotAt(p, "10:00", 30), slotAt(p, "10:15", 30), true},
		{"contained", slotAt(p, "10:00", 60), slotAt(p, "10:15", 15), true},
		{"adjacent after", slotAt(p, "10:00", 30), slotAt(p, "10:30", 30), false},
		{"adjacent before", slotAt(p, "10:30", 30), slotAt(p, "10:00", 30), false},
		{"disjoint", slotAt(p, "10:00", 30), slotAt(p, "14:00", 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.overlaps, tt.b.Overlaps(tt.a))
		})
	}
}

func TestIndexConflicts(t *testing.T) {
	p := uuid.New()
	idx := NewAvailabilityIndex()

	idx.Add(scheduled(slotAt(p, "10:00", 30)))
	idx.Add(scheduled(slotAt(p, "11:00", 30)))

	assert.True(t, idx.Conflicts(slotAt(p, "10:15", 30)))
	assert.True(t, idx.Conflicts(slotAt(p, "09:45", 30)))
	assert.True(t, idx.Conflicts(slotAt(p, "09:00", 180)))

	// Half-open boundaries: touching endpoints do not conflict.
	assert.False(t, idx.Conflicts(slotAt(p, "10:30", 30)))
	assert.False(t, idx.Conflicts(slotAt(p, "09:30", 30)))

	// Other practitioners never conflict.
	assert.False(t, idx.Conflicts(slotAt(uuid.New(), "10:00", 30)))
}

func TestIndexRemoveFreesSlot(t *testing.T) {
	p := uuid.New()
	idx := NewAvailabilityIndex()

	appt := scheduled(slotAt(p, "10:00", 30))
	idx.Add(appt)
	assert.True(t, idx.Conflicts(slotAt(p, "10:00", 30)))

	idx.Remove(p, appt.ID)
	assert.False(t, idx.Conflicts(slotAt(p, "10:00", 30)))

	// Removing again is a no-op.
	idx.Remove(p, appt.ID)
}

func TestIndexRebuild(t *testing.T) {
	p := uuid.New()
	idx := NewAvailabilityIndex()

	assert.False(t, idx.Loaded(p))

	// Unordered input; the index must keep start order internally.
	appts := []Appointment{
		*scheduled(slotAt(p, "14:00", 30)),
		*scheduled(slotAt(p, "09:00", 30)),
		*scheduled(slotAt(p, "11:30", 60)),
	}
	idx.Rebuild(p, appts)

	assert.True(t, idx.Loaded(p))
	assert.True(t, idx.Conflicts(slotAt(p, "09:15", 30)))
	assert.True(t, idx.Conflicts(slotAt(p, "12:00", 15)))
	assert.False(t, idx.Conflicts(slotAt(p, "09:30", 30)))
	assert.False(t, idx.Conflicts(slotAt(p, "16:00", 30)))

	// Rebuild replaces, not merges.
	idx.Rebuild(p, nil)
	assert.False(t, idx.Conflicts(slotAt(p, "09:15", 30)))
}

func TestIndexAddKeepsOrder(t *testing.T) {
	p := uuid.New()
	idx := NewAvailabilityIndex()

	idx.Add(scheduled(slotAt(p, "15:00", 30)))
	idx.Add(scheduled(slotAt(p, "09:00", 30)))
	idx.Add(scheduled(slotAt(p, "12:00", 30)))

	// The binary search over start times only works if inserts kept order;
	// probe around each entry.
	for _, hhmm := range []string{"09:10", "12:10", "15:10"} {
		assert.True(t, idx.Conflicts(slotAt(p, hhmm, 10)), hhmm)
	}
	for _, hhmm := range []string{"08:30", "09:30", "11:00", "12:30", "14:00", "15:30"} {
		assert.False(t, idx.Conflicts(slotAt(p, hhmm, 30)), hhmm)
	}
}
