package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so the pipeline can decide between retrying, dropping,
// and failing a record.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store or registry
// - ErrUnavailable: downstream temporarily unreachable; the caller must not
//   commit its offset so the record is redelivered
// - ErrInvalidState: entity in wrong state for the requested transition
// - ErrConflict: a concurrent writer got there first
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
