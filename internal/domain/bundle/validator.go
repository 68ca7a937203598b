package bundle

import (
	"github.com/google/cel-go/cel"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/domain/vector"
)

// modifyAllowedClasses lists the enforcement classes allowed to carry a
// non-empty modification spec. Observational and RateLimit rules report
// or throttle; they never rewrite the request (spec.md §4.8 "disallowed
// side-effects for the declared enforcement class").
var modifyAllowedClasses = map[rule.EnforcementClass]struct{}{
	rule.ClassTransform: {},
	rule.ClassAugment:   {},
	rule.ClassGraceful:  {},
}

// Validator checks rule descriptors for structural and cross-rule
// problems before they are staged with the Deployment Manager.
type Validator struct {
	guardEnv *cel.Env
}

// NewValidator constructs a Validator with its guard-expression CEL
// environment. Returns an error only if the environment itself fails to
// build (a configuration bug, not a per-bundle validation failure).
func NewValidator() (*Validator, error) {
	env, err := newGuardEnvironment()
	if err != nil {
		return nil, err
	}
	return &Validator{guardEnv: env}, nil
}

// Validate runs every check from spec.md §4.8 against descriptors and
// returns a combined ValidationResult.
func (v *Validator) Validate(descriptors []*rule.Rule) ValidationResult {
	result := ValidationResult{Valid: true}

	v.checkDuplicateIDs(descriptors, &result)
	v.checkPriorityConflicts(descriptors, &result)
	v.checkScopes(descriptors, &result)
	v.checkAnchorBounds(descriptors, &result)
	v.checkModificationSpecs(descriptors, &result)

	return result
}

func (v *Validator) checkDuplicateIDs(descriptors []*rule.Rule, result *ValidationResult) {
	seen := make(map[rule.ID]struct{}, len(descriptors))
	for _, r := range descriptors {
		if _, dup := seen[r.RuleID]; dup {
			result.addError("duplicate rule id %q in bundle", r.RuleID)
			continue
		}
		seen[r.RuleID] = struct{}{}
	}
}

// checkPriorityConflicts flags two rules in the same family with the same
// priority whose scopes overlap — evaluation order between them would be
// ambiguous beyond the rule_id tie-break, which this spec intends as a
// genuine conflict to surface rather than silently resolve.
func (v *Validator) checkPriorityConflicts(descriptors []*rule.Rule, result *ValidationResult) {
	for i := 0; i < len(descriptors); i++ {
		for j := i + 1; j < len(descriptors); j++ {
			a, b := descriptors[i], descriptors[j]
			if a.FamilyID != b.FamilyID || a.Priority != b.Priority {
				continue
			}
			if scopesOverlap(a.Scope, b.Scope) {
				result.addWarning("rules %q and %q share family %q, priority %d, and overlapping scope; evaluation order between them falls back to rule id", a.RuleID, b.RuleID, a.FamilyID, a.Priority)
			}
		}
	}
}

func scopesOverlap(a, b rule.Scope) bool {
	if a.Global || b.Global {
		return true
	}
	if setsIntersect(a.AgentIDs, b.AgentIDs) || setsIntersect(a.FlowIDs, b.FlowIDs) || setsIntersect(a.DestAgentIDs, b.DestAgentIDs) {
		return true
	}
	return setsIntersect(a.PayloadDTypes, b.PayloadDTypes)
}

func setsIntersect[T comparable](a, b map[T]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if _, ok := large[k]; ok {
			return true
		}
	}
	return false
}

// checkScopes rejects a scope declared both global and scoped to a
// specific set — the combination is self-contradictory (spec.md §4.8
// "invalid scope combinations").
func (v *Validator) checkScopes(descriptors []*rule.Rule, result *ValidationResult) {
	for _, r := range descriptors {
		if !r.Scope.Global {
			continue
		}
		if len(r.Scope.AgentIDs) > 0 || len(r.Scope.FlowIDs) > 0 || len(r.Scope.DestAgentIDs) > 0 || len(r.Scope.PayloadDTypes) > 0 {
			result.addError("rule %q declares scope both global and restricted to specific ids", r.RuleID)
		}
	}
}

// checkAnchorBounds enforces the INVALID_ANCHOR rejection: any anchor
// block's count must be within [0, MaxAnchorsPerSlot] (the fixed array
// dimensions already guarantee each anchor vector is 32-d).
func (v *Validator) checkAnchorBounds(descriptors []*rule.Rule, result *ValidationResult) {
	for _, r := range descriptors {
		for _, block := range []struct {
			name  string
			count int
		}{
			{"action", r.ActionAnchors.Count},
			{"resource", r.ResourceAnchors.Count},
			{"data", r.DataAnchors.Count},
			{"risk", r.RiskAnchors.Count},
		} {
			if block.count < 0 || block.count > vector.MaxAnchorsPerSlot {
				result.addError("rule %q %s anchor count %d out of [0,%d]", r.RuleID, block.name, block.count, vector.MaxAnchorsPerSlot)
			}
		}
		if r.DriftThreshold < 0 || r.DriftThreshold > 1 {
			result.addError("rule %q drift threshold %v out of [0,1]", r.RuleID, r.DriftThreshold)
		}
	}
}

// checkModificationSpecs rejects a modification spec on an enforcement
// class that should not carry side effects, and compile-checks any guard
// expression as CEL without evaluating it.
func (v *Validator) checkModificationSpecs(descriptors []*rule.Rule, result *ValidationResult) {
	for _, r := range descriptors {
		if r.Modification == nil || r.Modification.IsEmpty() {
			continue
		}
		if _, ok := modifyAllowedClasses[r.EnforcementClass]; !ok {
			result.addError("rule %q has enforcement class %q, which may not carry a modification spec", r.RuleID, r.EnforcementClass)
		}
		if r.Modification.Guard != "" {
			if err := compileGuard(v.guardEnv, r.Modification.Guard); err != nil {
				result.addError("rule %q modification guard: %v", r.RuleID, err)
			}
		}
	}
}
