package auth

import (
	"errors"

	"github.com/google/uuid"
)

var ErrForbidden = errors.New("action not permitted for this identity")

type Action string

const (
	ActionBook     Action = "book"
	ActionView     Action = "view"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// ResourceOwners names the parties an appointment (or booking request)
// belongs to. Either field may be uuid.Nil when the action is not scoped to
// that party.
type ResourceOwners struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
}

// scope says which ownership relation a role needs for an action.
type scope int

const (
	scopeNone scope = iota // role may never perform the action
	scopeOwnPatient        // subject must be the resource's patient
	scopeOwnPractitioner   // subject must be the resource's practitioner
	scopeAny               // no ownership requirement
)

// capabilities is the fixed role capability table. Roles are a closed set,
// so a missing entry means deny.
var capabilities = map[Role]map[Action]scope{
	RolePatient: {
		ActionBook:   scopeOwnPatient,
		ActionView:   scopeOwnPatient,
		ActionCancel: scopeOwnPatient,
	},
	RoleDoctor: {
		ActionView:     scopeOwnPractitioner,
		ActionCancel:   scopeOwnPractitioner,
		ActionComplete: scopeOwnPractitioner,
	},
	RoleAdmin: {
		ActionBook:     scopeAny,
		ActionView:     scopeAny,
		ActionCancel:   scopeAny,
		ActionComplete: scopeAny,
	},
}

// Guard evaluates the capability table. Deny is an ordinary outcome the
// caller must branch on before mutating anything, not an exception path.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

func (g *Guard) Authorize(id Identity, action Action, owners ResourceOwners) error {
	actions, ok := capabilities[id.Role]
	if !ok {
		return ErrForbidden
	}
	sc, ok := actions[action]
	if !ok {
		return ErrForbidden
	}

	switch sc {
	case scopeAny:
		return nil
	case scopeOwnPatient:
		if owners.PatientID != uuid.Nil && owners.PatientID == id.Subject {
			return nil
		}
	case scopeOwnPractitioner:
		if owners.PractitionerID != uuid.Nil && owners.PractitionerID == id.Subject {
			return nil
		}
	}
	return ErrForbidden
}
