package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/bundle"
	"github.com/vectorbound/boundaryplane/internal/domain/deployment"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

func sampleAnchors(n int) anchorBlockRequest {
	anchors := make([][]float32, n)
	for i := range anchors {
		row := make([]float32, 32)
		row[0] = 1
		anchors[i] = row
	}
	return anchorBlockRequest{Anchors: anchors}
}

func sampleInstallRequest() installBundleRequest {
	anchors := sampleAnchors(1)
	return installBundleRequest{
		Name: "egress-guard",
		Rules: []ruleDescriptorRequest{
			{
				RuleID:           "r1",
				FamilyID:         "L6_egress",
				PolicyType:       "forbidden",
				EnforcementClass: "block_deny",
				EnforcementMode:  "hard",
				Mode:             "min",
				Thresholds:       [4]float32{0.7, 0.7, 0.7, 0.7},
				Scope:            scopeRequest{Global: true},
				ActionAnchors:    anchors,
				ResourceAnchors:  anchors,
				DataAnchors:      anchors,
				RiskAnchors:      anchors,
			},
		},
	}
}

func newTestBundleHandler(t *testing.T) (*EnforcementHandler, *bundle.Service, *deployment.Manager) {
	t.Helper()
	bundleSvc, err := bundle.NewService()
	if err != nil {
		t.Fatalf("bundle.NewService: %v", err)
	}
	b := bridge.New()
	mgr := deployment.NewManager(b, nil)
	h := NewEnforcementHandler(WithBundleService(bundleSvc), WithDeploymentManager(mgr), WithBridge(b))
	return h, bundleSvc, mgr
}

func TestHandleInstallBundle_ValidBundleReturns201(t *testing.T) {
	h, _, _ := newTestBundleHandler(t)

	body, _ := json.Marshal(sampleInstallRequest())
	req := httptest.NewRequest(http.MethodPost, "/v1/bundles", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp installBundleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BundleID == "" {
		t.Error("expected non-empty bundle_id")
	}
	if len(resp.Installed) != 1 {
		t.Errorf("installed count = %d, want 1", len(resp.Installed))
	}
}

func TestHandleInstallBundle_InvalidAnchorDimensionIsRejectedPerRule(t *testing.T) {
	h, _, _ := newTestBundleHandler(t)

	req := sampleInstallRequest()
	req.Rules[0].ActionAnchors = anchorBlockRequest{Anchors: [][]float32{{1, 2, 3}}}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/bundles", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httpReq)

	var resp installBundleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rejected) == 0 {
		t.Fatal("expected the malformed rule to be rejected")
	}
}

func TestHandleInstallBundle_DuplicateRuleIDFailsValidation(t *testing.T) {
	h, _, _ := newTestBundleHandler(t)

	req := sampleInstallRequest()
	req.Rules = append(req.Rules, req.Rules[0])

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/bundles", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httpReq)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestHandleActivateAndRollbackBundle(t *testing.T) {
	h, bundleSvc, mgr := newTestBundleHandler(t)

	anchors := sampleAnchors(1)
	descriptor := ruleDescriptorRequest{
		RuleID: "r1", FamilyID: "L6_egress", PolicyType: "forbidden",
		EnforcementClass: "block_deny", EnforcementMode: "hard", Mode: "min",
		Thresholds: [4]float32{0.7, 0.7, 0.7, 0.7}, Scope: scopeRequest{Global: true},
		ActionAnchors: anchors, ResourceAnchors: anchors, DataAnchors: anchors, RiskAnchors: anchors,
	}
	rl, err := descriptor.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	b, report := bundleSvc.Create("egress-guard", []*rule.Rule{rl})
	if !report.Valid {
		t.Fatalf("unexpected validation errors: %v", report.Errors)
	}

	activateReq := httptest.NewRequest(http.MethodPost, "/v1/bundles/"+string(b.ID)+"/activate", bytes.NewReader([]byte(`{"strategy":"blue_green"}`)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, activateReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}

	if mgr.History(b.ID)[0].State != deployment.StateActive {
		t.Errorf("deployment state = %q, want %q", mgr.History(b.ID)[0].State, deployment.StateActive)
	}

	rollbackReq := httptest.NewRequest(http.MethodPost, "/v1/bundles/"+string(b.ID)+"/rollback", nil)
	rec2 := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec2, rollbackReq)
	// no predecessor exists yet, so rollback is ineligible
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("rollback status = %d, want %d", rec2.Code, http.StatusBadRequest)
	}
}

func TestHandleRevokeBundle_UnknownReturns404(t *testing.T) {
	h, _, _ := newTestBundleHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/bundles/unknown/revoke", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
