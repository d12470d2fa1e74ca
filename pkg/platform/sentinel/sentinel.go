package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The ledger store, notary and
// external clients return these (optionally wrapped) so workflows can
// translate them into domain errors.
//
// These represent factual states about records and collaborators, not rule
// violations:
// - ErrNotFound: no current version exists for the requested record
// - ErrConflict: a consumed version was already superseded (consume-once)
// - ErrInvalidState: record is in the wrong status for the requested procedure
// - ErrSignatureMissing: a required party has not countersigned the bundle
// - ErrUnavailable: collaborator temporarily unreachable
//
// For rule-table rejections use rules.Rejection; for input validation use
// pkg/domain-errors directly.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidState     = errors.New("invalid state")
	ErrSignatureMissing = errors.New("signature missing")
	ErrUnavailable      = errors.New("unavailable")
)
