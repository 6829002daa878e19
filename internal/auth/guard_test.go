package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGuardCapabilityTable(t *testing.T) {
	guard := NewGuard()

	patientID := uuid.New()
	practitionerID := uuid.New()
	otherID := uuid.New()

	owners := ResourceOwners{
		PatientID:      patientID,
		PractitionerID: practitionerID,
	}

	tests := []struct {
		name    string
		subject uuid.UUID
		role    Role
		action  Action
		allowed bool
	}{
		{"patient books for self", patientID, RolePatient, ActionBook, true},
		{"patient books for someone else", otherID, RolePatient, ActionBook, false},
		{"patient views own appointment", patientID, RolePatient, ActionView, true},
		{"patient views foreign appointment", otherID, RolePatient, ActionView, false},
		{"patient cancels own appointment", patientID, RolePatient, ActionCancel, true},
		{"patient cancels foreign appointment", otherID, RolePatient, ActionCancel, false},
		{"patient never completes", patientID, RolePatient, ActionComplete, false},

		{"doctor views own appointment", practitionerID, RoleDoctor, ActionView, true},
		{"doctor views foreign appointment", otherID, RoleDoctor, ActionView, false},
		{"doctor cancels own appointment", practitionerID, RoleDoctor, ActionCancel, true},
		{"doctor completes own appointment", practitionerID, RoleDoctor, ActionComplete, true},
		{"doctor completes foreign appointment", otherID, RoleDoctor, ActionComplete, false},
		{"doctor never books", practitionerID, RoleDoctor, ActionBook, false},

		{"admin books anything", otherID, RoleAdmin, ActionBook, true},
		{"admin views anything", otherID, RoleAdmin, ActionView, true},
		{"admin cancels anything", otherID, RoleAdmin, ActionCancel, true},
		{"admin completes anything", otherID, RoleAdmin, ActionComplete, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Authorize(Identity{Subject: tt.subject, Role: tt.role}, tt.action, owners)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestGuardUnknownRoleDenied(t *testing.T) {
	guard := NewGuard()
	err := guard.Authorize(Identity{Subject: uuid.New(), Role: Role("intern")}, ActionView, ResourceOwners{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGuardNilOwnerNeverMatches(t *testing.T) {
	guard := NewGuard()
	// An ownership-scoped rule must not match a zero owner id, even if the
	// subject were somehow zero too.
	err := guard.Authorize(Identity{Subject: uuid.Nil, Role: RolePatient}, ActionView, ResourceOwners{})
	assert.ErrorIs(t, err, ErrForbidden)
}
