// Package deployment implements the versioned Hot-Reload / Deployment
// Manager: staged bundle activation via blue-green, canary, A/B, or
// scheduled strategies, with health-driven auto-rollback (spec.md §4.4).
package deployment

import (
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// State is a position in the deployment state machine:
// Pending → Staging → Rolling → {Active | Failing} → {Retired | RolledBack}.
type State string

const (
	StatePending    State = "pending"
	StateStaging    State = "staging"
	StateRolling    State = "rolling"
	StateActive     State = "active"
	StateFailing    State = "failing"
	StateRetired    State = "retired"
	StateRolledBack State = "rolled_back"
)

// StrategyKind tags which activation strategy a Deployment uses.
type StrategyKind string

const (
	StrategyBlueGreen StrategyKind = "blue_green"
	StrategyCanary    StrategyKind = "canary"
	StrategyAB        StrategyKind = "ab"
	StrategyScheduled StrategyKind = "scheduled"
)

// Strategy parameterizes how traffic shifts from the previous version to
// the new one. Exactly one of the *-specific fields is meaningful,
// selected by Kind.
type Strategy struct {
	Kind StrategyKind

	// Canary
	Percent float64 // [0,1]; fraction of requests routed to the new version
	Sticky  bool    // same request key always routes to the same version

	// AB
	Split float64 // [0,1]; fraction routed to the B (new) version

	// Scheduled
	ActivateAt time.Time
}

// HealthThresholds gate auto-rollback. Exceeding any for the sustain
// window triggers it.
type HealthThresholds struct {
	MaxErrorRate   float64       // [0,1]
	MaxP99Latency  time.Duration
	MinSuccessRate float64       // [0,1]
	SustainWindow  time.Duration // how long a breach must persist before acting
}

// DefaultHealthThresholds mirrors the teacher's conservative defaults for
// gateway health gating.
var DefaultHealthThresholds = HealthThresholds{
	MaxErrorRate:   0.05,
	MaxP99Latency:  750 * time.Millisecond,
	MinSuccessRate: 0.95,
	SustainWindow:  30 * time.Second,
}

// HealthMetrics is a point-in-time read of a version's sliding-window
// counters.
type HealthMetrics struct {
	Requests    int64
	Errors      int64
	ErrorRate   float64
	P99Latency  time.Duration
	SuccessRate float64
}

// Deployment is one versioned rollout of a bundle into a target family.
type Deployment struct {
	VersionID rule.VersionID
	BundleID  rule.BundleID
	Family    rule.FamilyID
	Strategy  Strategy
	State     State

	Thresholds HealthThresholds

	CreatedAt   time.Time
	ActivatedAt time.Time

	// Previous points at the version this one supersedes, used for
	// rollback and for BlueGreen's Retired transition on success.
	Previous rule.VersionID

	Rules []*rule.Rule
}

// IsRollbackEligible reports whether the deployment is in a state rollback
// can act from (spec.md §4.4: "Rollback is only valid from Active or
// Failing and requires a predecessor").
func (d *Deployment) IsRollbackEligible() bool {
	return (d.State == StateActive || d.State == StateFailing) && d.Previous != ""
}
