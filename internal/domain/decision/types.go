// Package decision defines the Enforcement Engine's output type and the
// error taxonomy that drives its fail-closed behavior (spec.md §4.6, §7).
package decision

import (
	"errors"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// Outcome is the top-level enforcement verdict, wire-coded 0/1/2 per
// spec.md §6 EnforcementDecision JSON.
type Outcome int

const (
	OutcomeBlock  Outcome = 0
	OutcomeAllow  Outcome = 1
	OutcomeModify Outcome = 2
)

// ErrorKind names one row of the error taxonomy (spec.md §7), carried on
// every EnforcementError so callers can branch on outcome without string
// matching.
type ErrorKind string

const (
	KindMissingLayer        ErrorKind = "MISSING_LAYER"
	KindEmbeddingUnavailable ErrorKind = "EMBEDDING_UNAVAILABLE"
	KindInvalidAnchor       ErrorKind = "INVALID_ANCHOR"
	KindDeployRejected      ErrorKind = "DEPLOY_REJECTED"
	KindTimeout             ErrorKind = "TIMEOUT"
	KindTelemetryFull       ErrorKind = "TELEMETRY_FULL"
)

// EnforcementError is the taxonomy's concrete error type: a Kind plus a
// human-readable message. errors.Is compares by identity against the
// package's sentinel instances below; errors.As recovers the Kind.
type EnforcementError struct {
	Kind ErrorKind
	msg  string
}

func (e *EnforcementError) Error() string { return e.msg }

// Sentinel errors for the fail-closed taxonomy (spec.md §7). Each is
// returned alongside a BLOCK EnforcementDecision carrying whatever partial
// evidence had been collected.
var (
	ErrMissingLayer         = &EnforcementError{Kind: KindMissingLayer, msg: "missing_layer"}
	ErrEmbeddingUnavailable = &EnforcementError{Kind: KindEmbeddingUnavailable, msg: "embedding_unavailable"}
	ErrTimeout              = &EnforcementError{Kind: KindTimeout, msg: "timeout"}
	ErrTelemetryFull        = &EnforcementError{Kind: KindTelemetryFull, msg: "telemetry_full"}
	ErrInvalidAnchor        = &EnforcementError{Kind: KindInvalidAnchor, msg: "invalid_anchor"}
	ErrDeployRejected       = &EnforcementError{Kind: KindDeployRejected, msg: "deploy_rejected"}
)

// KindOf recovers the ErrorKind from err, if it is (or wraps) an
// *EnforcementError.
func KindOf(err error) (ErrorKind, bool) {
	var ee *EnforcementError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}

// Evidence is one rule's contribution to a decision's evidence trail.
type Evidence struct {
	BoundaryID   rule.ID
	BoundaryName string
	Effect       string // "block" | "allow" | "defer" | "drift"
	Decision     Outcome
	Similarities [4]float32
}

// EnforcementDecision is the Enforcement Engine's return value (spec.md
// §4.6 contract, §6 JSON shape).
type EnforcementDecision struct {
	Decision            Outcome
	SliceSimilarities   [4]float32
	BoundariesEvaluated uint32
	TimestampUnix       float64
	Evidence            []Evidence
	Modification        *rule.ModificationSpec
}
