package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about stored resources, not data gaps in a
// case. Missing or conflicting case evidence is never an error; it lives in
// a ValidationState.
// - ErrNotFound: no record or status exists for the key
// - ErrConflict: a revision with the same number already exists
// - ErrStale: a write carried an older evaluation time than the stored one
// - ErrInvalidState: entity in wrong state for requested operation (e.g. closed SLA)
// - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStale        = errors.New("stale write")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
