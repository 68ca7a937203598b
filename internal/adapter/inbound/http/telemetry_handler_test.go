package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/refresh"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/domain/telemetry"
)

type fakeAnchorRepository struct {
	rules map[rule.FamilyID][]*rule.Rule
	err   error
}

func (f *fakeAnchorRepository) ListFamily(_ context.Context, family rule.FamilyID) ([]*rule.Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules[family], nil
}

func (f *fakeAnchorRepository) FetchRule(_ context.Context, id rule.ID) (*rule.Rule, bool, error) {
	for _, rules := range f.rules {
		for _, r := range rules {
			if r.RuleID == id {
				return r, true, nil
			}
		}
	}
	return nil, false, nil
}

func seedRecorder() *telemetry.Recorder {
	rec := telemetry.NewRecorder(telemetry.DefaultRotationPolicy, telemetry.BackpressureBlockThenDrop, 0)
	for i := 0; i < 3; i++ {
		rec.Append(telemetry.CompactRecord{
			RuleID:      rule.ID(fmt.Sprintf("r%d", i)),
			Outcome:     telemetry.Outcome(i % 2),
			TimestampMs: time.Now().UnixMilli(),
		}, time.Now(), nil, nil)
	}
	return rec
}

func TestHandleQueryTelemetry_FilterByRuleID(t *testing.T) {
	rec := seedRecorder()
	h := NewEnforcementHandler(WithRecorder(rec))

	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry?rule_id=r1", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var out []sessionSummaryResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].RuleID != "r1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestHandleQueryTelemetry_FilterBySequenceRange(t *testing.T) {
	rec := seedRecorder()
	h := NewEnforcementHandler(WithRecorder(rec))

	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry?seq_from=2&seq_to=3", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	var out []sessionSummaryResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 sessions in range, got %d", len(out))
	}
}

func TestHandleQueryTelemetry_FilterByTimeRange(t *testing.T) {
	rec := seedRecorder()
	h := NewEnforcementHandler(WithRecorder(rec))

	from := time.Now().Add(-time.Hour).Format(time.RFC3339)
	to := time.Now().Add(time.Hour).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry?from="+from+"&to="+to, nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	var out []sessionSummaryResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 sessions within time range, got %d", len(out))
	}
}

func TestHandleQueryTelemetry_InvalidTimeReturns400(t *testing.T) {
	rec := seedRecorder()
	h := NewEnforcementHandler(WithRecorder(rec))

	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry?from=not-a-time", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleQueryTelemetry_NoFilterReturnsAll(t *testing.T) {
	rec := seedRecorder()
	h := NewEnforcementHandler(WithRecorder(rec))

	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	var out []sessionSummaryResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(out))
	}
}

func TestHandleQueryTelemetry_NotConfiguredReturns500(t *testing.T) {
	h := NewEnforcementHandler()

	req := httptest.NewRequest(http.MethodGet, "/v1/telemetry", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleRefreshRules_Success(t *testing.T) {
	b := bridge.New()
	repo := &fakeAnchorRepository{rules: map[rule.FamilyID][]*rule.Rule{
		rule.FamilyL4ToolGateway: {{RuleID: "r1", FamilyID: rule.FamilyL4ToolGateway, Scope: rule.GlobalScope(), State: rule.StateActive, Version: 1}},
	}}
	scheduler := refresh.NewScheduler(b, repo, 0, true, nil)
	h := NewEnforcementHandler(WithScheduler(scheduler))

	req := httptest.NewRequest(http.MethodPost, "/v1/rules/refresh", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHandleRefreshRules_RepositoryErrorReturns500(t *testing.T) {
	b := bridge.New()
	repo := &fakeAnchorRepository{err: fmt.Errorf("repository unavailable")}
	scheduler := refresh.NewScheduler(b, repo, 0, true, nil)
	h := NewEnforcementHandler(WithScheduler(scheduler))

	req := httptest.NewRequest(http.MethodPost, "/v1/rules/refresh", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleRefreshRules_NotConfiguredReturns500(t *testing.T) {
	h := NewEnforcementHandler()

	req := httptest.NewRequest(http.MethodPost, "/v1/rules/refresh", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
