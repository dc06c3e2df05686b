package death

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lifeline/pkg/domain"
)

// Store persists death events and unresolved-party aggregates. Only the death
// handler creates and refreshes observations; only the reconciler and the
// letter callback move rows through their terminal transitions.
type Store interface {
	// UpsertObservation inserts a NEW row for the (deceased, affected) pair
	// or, when an open row already exists, overwrites its content and resets
	// the status to UPDATED. At most one open row per pair exists at any
	// time.
	UpsertObservation(ctx context.Context, ev Event) error

	// ReplaceUnresolved replaces the unresolved-party row for the deceased
	// with the latest resolution attempt.
	ReplaceUnresolved(ctx context.Context, parties UnresolvedParties) error

	// GetUnresolved returns the current unresolved-party row for a deceased
	// person, or sentinel.ErrNotFound.
	GetUnresolved(ctx context.Context, deceased domain.PersonID) (UnresolvedParties, error)

	// ListByStatus returns all rows with the given status.
	ListByStatus(ctx context.Context, status Status) ([]Event, error)

	// MarkStatus transitions one row. Returns sentinel.ErrInvalidState if the
	// transition would regress the state machine, sentinel.ErrNotFound for an
	// unknown id.
	MarkStatus(ctx context.Context, id uuid.UUID, status Status, outcome *Outcome, ref *string) error

	// CancelOpen marks every open (NEW/UPDATED) row for the deceased
	// CANCELLED and returns how many rows were affected.
	CancelOpen(ctx context.Context, deceased domain.PersonID) (int, error)

	// SetLetterOutcome records a distributed letter on the DONE rows for the
	// affected person, returning how many rows were updated.
	SetLetterOutcome(ctx context.Context, affected domain.PersonID, letterRef string, at time.Time) (int, error)

	// WithinTx runs fn inside one transaction so a deceased person's affected
	// set is committed atomically.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
