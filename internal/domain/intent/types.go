// Package intent defines the inbound IntentEvent: the structured record the
// enforcement engine evaluates on every call (spec.md §3).
package intent

import (
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// SchemaVersion is the IntentEvent wire schema version (spec.md §6).
const SchemaVersion = "v1.3"

// ActorKind distinguishes the caller classes an action can originate from.
type ActorKind string

const (
	ActorAgent ActorKind = "agent"
	ActorUser  ActorKind = "user"
	ActorTool  ActorKind = "tool"
)

// Actor identifies who (or what) is taking the action.
type Actor struct {
	ID   string    `json:"id" validate:"required"`
	Kind ActorKind `json:"kind" validate:"required"`
}

// Resource describes what the action targets.
type Resource struct {
	Kind     string `json:"kind" validate:"required"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

// DataDescriptor characterizes the data an action touches, for the data
// slot of the intent vector.
type DataDescriptor struct {
	SensitivityTags []string `json:"sensitivityTags,omitempty"`
	PII             bool     `json:"pii,omitempty"`
	VolumeBytes     int64    `json:"volumeBytes,omitempty"`
}

// AuthState captures the authentication/authorization posture backing the
// action, consumed by the risk slot.
type AuthState string

const (
	AuthAnonymous    AuthState = "anonymous"
	AuthAuthenticated AuthState = "authenticated"
	AuthElevated     AuthState = "elevated"
	AuthDelegated    AuthState = "delegated"
)

// Risk bundles the signals that feed the risk slot of the intent vector.
type Risk struct {
	Auth AuthState `json:"auth" validate:"required"`
}

// RateLimitContext is attached when the event arrives with rate-limit
// bookkeeping already in hand (spec.md §3); the engine treats it as
// evidence, not as an enforcement action in its own right.
type RateLimitContext struct {
	AgentID     rule.AgentID `json:"agentId"`
	WindowStart time.Time    `json:"windowStart"`
	CallCount   int          `json:"callCount"`
}

// Event is one unit of AI-agent traffic intercepted at an enforcement
// layer. Layer determines which rule families are eligible to evaluate it
// (spec.md §3 invariant).
type Event struct {
	ID            string           `json:"id" validate:"required"`
	SchemaVersion string           `json:"schemaVersion" validate:"required"`
	TenantID      string           `json:"tenantId" validate:"required"`
	Timestamp     time.Time        `json:"timestamp" validate:"required"`
	Actor         Actor            `json:"actor" validate:"required"`
	Action        string           `json:"action" validate:"required"`
	Resource      Resource         `json:"resource" validate:"required"`
	Data          DataDescriptor   `json:"data,omitempty"`
	Risk          Risk             `json:"risk" validate:"required"`
	Context       map[string]any   `json:"context,omitempty"`
	Layer         rule.FamilyID    `json:"layer" validate:"required"`

	Tool       string            `json:"tool,omitempty"`
	Method     string            `json:"method,omitempty"`
	Params     map[string]any    `json:"params,omitempty"`
	RateLimit  *RateLimitContext `json:"rateLimit,omitempty"`

	Flow rule.FlowID `json:"flow,omitempty"`
}

// MatchInput projects the fields of Event that the Bridge and Rule Family
// Tables use to select scope-matching rules.
func (e *Event) MatchInput() rule.MatchInput {
	in := rule.MatchInput{
		Agent: rule.AgentID(e.Actor.ID),
		Flow:  e.Flow,
	}
	if e.Data.PII {
		in.PayloadType = "pii"
	}
	if e.Resource.Kind != "" && in.PayloadType == "" {
		in.PayloadType = e.Resource.Kind
	}
	return in
}

// HasLayer reports whether the event carries a usable enforcement layer
// tag, per the MISSING_LAYER fail-closed trigger (spec.md §7).
func (e *Event) HasLayer() bool {
	return e.Layer.Valid()
}
