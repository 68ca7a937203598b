package http

import (
	"fmt"
	"net/http"

	"github.com/vectorbound/boundaryplane/internal/domain/deployment"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/domain/vector"
)

// anchorBlockRequest is the JSON wire shape for one slot's anchor set
// (spec.md §6 "rule_anchors" shape, reused here for bundle install since
// rule.Rule carries no JSON tags of its own).
type anchorBlockRequest struct {
	Anchors [][]float32 `json:"anchors"`
}

func (a anchorBlockRequest) toDomain() (vector.AnchorBlock, error) {
	var block vector.AnchorBlock
	if len(a.Anchors) > vector.MaxAnchorsPerSlot {
		return block, fmt.Errorf("%w: %d anchors exceeds max %d", errInvalidAnchor, len(a.Anchors), vector.MaxAnchorsPerSlot)
	}
	for i, anchor := range a.Anchors {
		if len(anchor) != vector.SlotWidth {
			return block, fmt.Errorf("%w: anchor %d has dimension %d, want %d", errInvalidAnchor, i, len(anchor), vector.SlotWidth)
		}
		copy(block.Anchors[i][:], anchor)
	}
	block.Count = len(a.Anchors)
	return block, nil
}

var errInvalidAnchor = fmt.Errorf("invalid anchor")

// ruleDescriptorRequest is the JSON wire shape for one rule within an
// install request body.
type ruleDescriptorRequest struct {
	RuleID           string              `json:"rule_id"`
	FamilyID         string              `json:"family_id"`
	Priority         int                 `json:"priority"`
	EnforcementClass string              `json:"enforcement_class"`
	EnforcementMode  string              `json:"enforcement_mode"`
	PolicyType       string              `json:"policy_type"`
	DriftThreshold   float32             `json:"drift_threshold,omitempty"`
	Weights          [4]float32          `json:"weights,omitempty"`
	Thresholds       [4]float32          `json:"thresholds,omitempty"`
	Mode             string              `json:"mode"`
	GlobalThreshold  float32             `json:"global_threshold,omitempty"`
	Scope            scopeRequest        `json:"scope"`
	ActionAnchors    anchorBlockRequest  `json:"action_anchors"`
	ResourceAnchors  anchorBlockRequest  `json:"resource_anchors"`
	DataAnchors      anchorBlockRequest  `json:"data_anchors"`
	RiskAnchors      anchorBlockRequest  `json:"risk_anchors"`
}

type scopeRequest struct {
	Global        bool     `json:"global,omitempty"`
	AgentIDs      []string `json:"agent_ids,omitempty"`
	FlowIDs       []string `json:"flow_ids,omitempty"`
	DestAgentIDs  []string `json:"dest_agent_ids,omitempty"`
	PayloadDTypes []string `json:"payload_dtypes,omitempty"`
}

func (s scopeRequest) toDomain() rule.Scope {
	if s.Global {
		return rule.GlobalScope()
	}
	scope := rule.NewScope()
	for _, a := range s.AgentIDs {
		scope.AddAgent(rule.AgentID(a))
	}
	for _, f := range s.FlowIDs {
		scope.AddFlow(rule.FlowID(f))
	}
	for _, d := range s.DestAgentIDs {
		scope.DestAgentIDs[rule.AgentID(d)] = struct{}{}
	}
	for _, p := range s.PayloadDTypes {
		scope.PayloadDTypes[p] = struct{}{}
	}
	return scope
}

func decisionModeFromString(s string) vector.DecisionMode {
	if s == "weighted_avg" {
		return vector.ModeWeightedAvg
	}
	return vector.ModeMin
}

func (req ruleDescriptorRequest) toDomain() (*rule.Rule, error) {
	action, err := req.ActionAnchors.toDomain()
	if err != nil {
		return nil, fmt.Errorf("action_anchors: %w", err)
	}
	resource, err := req.ResourceAnchors.toDomain()
	if err != nil {
		return nil, fmt.Errorf("resource_anchors: %w", err)
	}
	data, err := req.DataAnchors.toDomain()
	if err != nil {
		return nil, fmt.Errorf("data_anchors: %w", err)
	}
	risk, err := req.RiskAnchors.toDomain()
	if err != nil {
		return nil, fmt.Errorf("risk_anchors: %w", err)
	}

	family := rule.FamilyID(req.FamilyID)
	return &rule.Rule{
		RuleID:           rule.ID(req.RuleID),
		FamilyID:         family,
		Layer:            family,
		Scope:            req.Scope.toDomain(),
		Priority:         req.Priority,
		EnforcementClass: rule.EnforcementClass(req.EnforcementClass),
		EnforcementMode:  rule.EnforcementMode(req.EnforcementMode),
		PolicyType:       rule.PolicyType(req.PolicyType),
		DriftThreshold:   req.DriftThreshold,
		Weights:          rule.SlotWeights(req.Weights),
		Thresholds:       req.Thresholds,
		Mode:             decisionModeFromString(req.Mode),
		GlobalThreshold:  req.GlobalThreshold,
		ActionAnchors:    action,
		ResourceAnchors:  resource,
		DataAnchors:      data,
		RiskAnchors:      risk,
	}, nil
}

// installBundleRequest is the JSON body for POST /v1/bundles
// (spec.md §6 InstallRules(Bundle)).
type installBundleRequest struct {
	Name  string                   `json:"name"`
	Rules []ruleDescriptorRequest  `json:"rules"`
}

type installBundleResponse struct {
	BundleID string   `json:"bundle_id"`
	Installed []string `json:"installed"`
	Rejected  []string `json:"rejected"`
	Warnings  []string `json:"warnings,omitempty"`
}

// handleInstallBundle processes POST /v1/bundles: validate and register a
// new Bundle at StateStaged (spec.md §3.5 "Install is staged via the
// Deployment Manager"). Anchor dimension/count violations are reported per
// rule as INVALID_ANCHOR rejections rather than failing the whole request.
func (h *EnforcementHandler) handleInstallBundle(w http.ResponseWriter, r *http.Request) {
	if h.bundles == nil {
		h.respondError(w, http.StatusInternalServerError, "bundle service not configured")
		return
	}

	var req installBundleRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var descriptors []*rule.Rule
	var rejected []string
	for _, rr := range req.Rules {
		d, err := rr.toDomain()
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %s", rr.RuleID, err))
			continue
		}
		descriptors = append(descriptors, d)
	}

	b, report := h.bundles.Create(req.Name, descriptors)
	if !report.Valid {
		h.logger.Info("bundle rejected", "name", req.Name, "errors", report.Errors)
		h.respondJSON(w, http.StatusUnprocessableEntity, installBundleResponse{
			Rejected: append(rejected, report.Errors...),
			Warnings: report.Warnings,
		})
		return
	}

	installed := make([]string, len(b.Rules))
	for i, rl := range b.Rules {
		installed[i] = string(rl.RuleID)
	}

	h.logger.Info("bundle installed", "bundle_id", b.ID, "name", b.Name, "rule_count", len(b.Rules))
	h.respondJSON(w, http.StatusCreated, installBundleResponse{
		BundleID:  string(b.ID),
		Installed: installed,
		Rejected:  rejected,
		Warnings:  report.Warnings,
	})
}

type activateBundleRequest struct {
	Family   string             `json:"family"`
	Strategy string             `json:"strategy"`
	Percent  float64            `json:"percent,omitempty"`
	Split    float64            `json:"split,omitempty"`
}

type deploymentResponse struct {
	VersionID string `json:"version_id"`
}

// handleActivateBundle processes POST /v1/bundles/{id}/activate: deploys
// the bundle's current rule set onto the Bridge via the Deployment
// Manager's strategy (spec.md §4.4).
func (h *EnforcementHandler) handleActivateBundle(w http.ResponseWriter, r *http.Request) {
	if h.bundles == nil || h.deployments == nil {
		h.respondError(w, http.StatusInternalServerError, "deployment manager not configured")
		return
	}

	id := rule.BundleID(h.pathParam(r, "id"))
	b, ok := h.bundles.Get(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "bundle not found")
		return
	}

	var req activateBundleRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(b.Rules) == 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "bundle has no rules")
		return
	}

	kind := deployment.StrategyKind(req.Strategy)
	if kind == "" {
		kind = deployment.StrategyBlueGreen
	}
	strategy := deployment.Strategy{
		Kind:    kind,
		Percent: req.Percent,
		Split:   req.Split,
	}

	version, err := h.deployments.Deploy(id, b.Rules[0].FamilyID, b.Rules, strategy, deployment.DefaultHealthThresholds)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deployments.Activate(version); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("bundle activated", "bundle_id", id, "version_id", version)
	h.respondJSON(w, http.StatusOK, deploymentResponse{VersionID: string(version)})
}

// handleRollbackBundle processes POST /v1/bundles/{id}/rollback: reverts
// the bundle's currently Active deployment to its predecessor.
func (h *EnforcementHandler) handleRollbackBundle(w http.ResponseWriter, r *http.Request) {
	if h.deployments == nil {
		h.respondError(w, http.StatusInternalServerError, "deployment manager not configured")
		return
	}

	id := rule.BundleID(h.pathParam(r, "id"))
	history := h.deployments.History(id)
	if len(history) == 0 {
		h.respondError(w, http.StatusNotFound, "no deployments for bundle")
		return
	}

	if err := h.deployments.Rollback(history[0].VersionID); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Warn("bundle rolled back", "bundle_id", id, "version_id", history[0].VersionID)
	w.WriteHeader(http.StatusNoContent)
}

// handleRevokeBundle processes POST /v1/bundles/{id}/revoke: permanently
// retires every rule in the bundle (spec.md §3 "revoked permanently").
func (h *EnforcementHandler) handleRevokeBundle(w http.ResponseWriter, r *http.Request) {
	if h.bundles == nil {
		h.respondError(w, http.StatusInternalServerError, "bundle service not configured")
		return
	}

	id := rule.BundleID(h.pathParam(r, "id"))
	if err := h.bundles.Revoke(id); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info("bundle revoked", "bundle_id", id)
	w.WriteHeader(http.StatusNoContent)
}
