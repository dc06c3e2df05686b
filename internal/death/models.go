package death

import (
	"time"

	"github.com/google/uuid"

	"lifeline/pkg/domain"
)

// Status is the DeathEvent state machine. Transitions are monotonic:
// NEW -> UPDATED -> DONE, with FAILED and CANCELLED reachable from any
// non-terminal state. A terminal row never changes status again.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusUpdated   Status = "UPDATED"
	StatusDone      Status = "DONE"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether a row in this status may still transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes the monotonic transition rules.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusUpdated:
		return s == StatusNew || s == StatusUpdated
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Outcome records the final consequence of a promoted row.
type Outcome string

const (
	OutcomeLetter    Outcome = "LETTER"
	OutcomeCase      Outcome = "CASE"
	OutcomeCancelled Outcome = "CANCELLED"
)

// RelationType links an affected person to the deceased.
type RelationType string

const (
	RelationChild           RelationType = "CHILD"
	RelationSpouseOrPartner RelationType = "SPOUSE_OR_PARTNER"
)

// Event is one persisted death observation: a (deceased, affected) pair with
// its processing status. Rows are never physically deleted; terminal rows form
// the audit trail. SourceEventID tracks the registry event behind the latest
// content and carries into downstream correlation.
type Event struct {
	ID            uuid.UUID
	DeceasedID    domain.PersonID
	AffectedID    domain.PersonID
	Relation      RelationType
	DateOfDeath   time.Time
	SourceEventID string
	Status        Status
	Outcome       *Outcome
	CaseRef       *string
	LetterRef     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PartialIdentity is whatever the registry knew about an affected person that
// could not be resolved to a canonical identifier.
type PartialIdentity struct {
	Name      string `json:"name"`
	BirthYear int    `json:"birthYear,omitempty"`
}

// UnresolvedParties aggregates a deceased person's affected relations that
// lack a canonical identifier. One row per deceased; each fresh resolution
// attempt replaces the previous row wholesale.
type UnresolvedParties struct {
	DeceasedID domain.PersonID
	Children   []PartialIdentity
	Spouses    []PartialIdentity
	UpdatedAt  time.Time
}
