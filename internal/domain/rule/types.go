package rule

import (
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/vector"
)

// State is the lifecycle state of a rule. Rules are created Staged,
// activated via a Deployment, and revoked permanently; they never return to
// Staged once Active.
type State string

const (
	StateStaged  State = "staged"
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateRevoked State = "revoked"
)

// IsEnforceable reports whether rules in this state should be evaluated on
// the hot path.
func (s State) IsEnforceable() bool {
	return s == StateActive
}

// EnforcementClass categorizes what a rule primarily does, independent of
// whether the match outcome blocks (spec.md §3 Rule).
type EnforcementClass string

const (
	ClassBlockDeny     EnforcementClass = "block_deny"
	ClassTransform     EnforcementClass = "transform"
	ClassAugment       EnforcementClass = "augment"
	ClassObservational EnforcementClass = "observational"
	ClassControl       EnforcementClass = "control"
	ClassRateLimit     EnforcementClass = "rate_limit"
	ClassGraceful      EnforcementClass = "graceful"
)

// EnforcementMode controls how strictly a match is enforced.
type EnforcementMode string

const (
	ModeHard EnforcementMode = "hard" // violations block the action
	ModeSoft EnforcementMode = "soft" // violations are recorded only
)

// PolicyType determines how a kernel match is interpreted by the
// enforcement engine (spec.md §4.6 step 5).
type PolicyType string

const (
	// PolicyForbidden: a match means BLOCK, and evaluation stops.
	PolicyForbidden PolicyType = "forbidden"
	// PolicyContextAllow: a match means ALLOW, and evaluation stops.
	PolicyContextAllow PolicyType = "context_allow"
	// PolicyContextDeny: a match means BLOCK, and evaluation stops.
	PolicyContextDeny PolicyType = "context_deny"
	// PolicyContextDefer: a match is recorded as evidence but never
	// short-circuits; evaluation continues to the next candidate rule.
	PolicyContextDefer PolicyType = "context_defer"
)

// ModificationSpec describes the patch to apply to an action's payload when
// a rule's decision is MODIFY. The patch format is opaque to the engine;
// the caller applies it. Action *execution* is out of scope (spec.md §1) —
// only the spec/invariants live here.
type ModificationSpec struct {
	// Kind names the patch dialect, e.g. "json_merge_patch", "redact_fields".
	Kind string `json:"kind"`
	// Patch is the opaque, kind-specific payload.
	Patch map[string]interface{} `json:"patch"`
	// Guard is an optional CEL expression validated at bundle-install time
	// (see internal/domain/bundle); it never participates in the hot-path
	// decision, which stays similarity-driven per spec.md non-goals.
	Guard string `json:"guard,omitempty"`
}

// IsEmpty reports whether the spec carries no patch (the common case for
// rules that don't MODIFY).
func (m *ModificationSpec) IsEmpty() bool {
	return m == nil || (m.Kind == "" && len(m.Patch) == 0)
}

// SlotWeights holds the four per-slot weights used by the kernel's
// weighted-average decision mode. Must sum to a finite, non-negative value;
// the zero value means "uniform" and is replaced by equal weights in
// Rule.Envelope.
type SlotWeights [vector.SlotCount]float32

// Rule is one boundary rule: identity, scope, lifecycle, enforcement
// configuration, and the anchor vectors the kernel compares an intent
// against (spec.md §3 Rule).
type Rule struct {
	RuleID   ID
	FamilyID FamilyID
	Layer    FamilyID // alias for FamilyID; kept distinct for evidence clarity
	Scope    Scope

	// Priority orders candidate evaluation: higher first, ties broken by
	// ascending RuleID (spec.md §4.2).
	Priority int

	// Version increments on every update; the previous version is
	// preserved until the new one reaches StateActive.
	Version uint64

	State            State
	EnforcementClass EnforcementClass
	EnforcementMode  EnforcementMode
	PolicyType       PolicyType

	// DriftThreshold, when > 0, attaches drift evidence when any similarity
	// falls below it. It never changes the decision by itself.
	DriftThreshold float32

	Modification *ModificationSpec

	Weights         SlotWeights
	Thresholds      [vector.SlotCount]float32
	Mode            vector.DecisionMode
	GlobalThreshold float32

	// FamilyParams is opaque, family-specific configuration (e.g. a
	// tool-whitelist family's extra parameters), treated as opaque JSON.
	FamilyParams map[string]interface{}

	ActionAnchors   vector.AnchorBlock
	ResourceAnchors vector.AnchorBlock
	DataAnchors     vector.AnchorBlock
	RiskAnchors     vector.AnchorBlock

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultThresholds are the per-slot defaults spec.md §4.6 describes:
// resource is traditionally the tightest (tool identity), action the
// loosest (semantic variants of "read/query/search").
var DefaultThresholds = [vector.SlotCount]float32{0.70, 0.80, 0.75, 0.75}

// Envelope builds the VectorEnvelope the comparison kernel consumes for
// this rule against the given intent.
func (r *Rule) Envelope(intent vector.IntentVector) vector.VectorEnvelope {
	weights := r.Weights
	if weights == (SlotWeights{}) {
		weights = SlotWeights{1, 1, 1, 1}
	}
	thresholds := r.Thresholds
	if thresholds == ([vector.SlotCount]float32{}) {
		thresholds = DefaultThresholds
	}

	return vector.VectorEnvelope{
		Intent:          intent,
		ActionAnchors:   r.ActionAnchors,
		ResourceAnchors: r.ResourceAnchors,
		DataAnchors:     r.DataAnchors,
		RiskAnchors:     r.RiskAnchors,
		Thresholds:      thresholds,
		Weights:         [vector.SlotCount]float32(weights),
		Mode:            r.Mode,
		GlobalThreshold: r.GlobalThreshold,
	}
}
