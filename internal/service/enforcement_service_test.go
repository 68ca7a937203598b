package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/decision"
	"github.com/vectorbound/boundaryplane/internal/domain/intent"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/domain/telemetry"
	"github.com/vectorbound/boundaryplane/internal/domain/vector"
	"github.com/vectorbound/boundaryplane/internal/port/outbound"
)

type fakeEmbeddingClient struct {
	vec vector.IntentVector
	err error
	delay time.Duration
}

func (f *fakeEmbeddingClient) Encode(ctx context.Context, event *intent.Event) (vector.IntentVector, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return vector.IntentVector{}, ctx.Err()
		}
	}
	if f.err != nil {
		return vector.IntentVector{}, f.err
	}
	return f.vec, nil
}

func uniformVector(v float32) vector.IntentVector {
	var iv vector.IntentVector
	for i := range iv {
		iv[i] = v
	}
	return iv
}

func wildcardForbiddenRule(id rule.ID, priority int) *rule.Rule {
	return &rule.Rule{
		RuleID:           id,
		FamilyID:         rule.FamilyL4ToolGateway,
		Scope:            rule.GlobalScope(),
		Priority:         priority,
		Version:          1,
		State:            rule.StateActive,
		EnforcementClass: rule.ClassBlockDeny,
		PolicyType:       rule.PolicyForbidden,
		Mode:             vector.ModeMin,
		Thresholds:       [4]float32{0.5, 0.5, 0.5, 0.5},
	}
}

func sampleEvent() *intent.Event {
	return &intent.Event{
		ID:            "evt-1",
		SchemaVersion: intent.SchemaVersion,
		TenantID:      "tenant-a",
		Timestamp:     time.Now(),
		Actor:         intent.Actor{ID: "agent-1", Kind: intent.ActorAgent},
		Action:        "read",
		Resource:      intent.Resource{Kind: "document"},
		Risk:          intent.Risk{Auth: intent.AuthAuthenticated},
		Layer:         rule.FamilyL4ToolGateway,
	}
}

func TestEnforce_MissingLayer_FailsClosed(t *testing.T) {
	b := bridge.New()
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil)

	event := sampleEvent()
	event.Layer = ""

	d, err := svc.Enforce(context.Background(), event)
	if !errors.Is(err, decision.ErrMissingLayer) {
		t.Fatalf("expected ErrMissingLayer, got %v", err)
	}
	if d.Decision != decision.OutcomeBlock {
		t.Fatalf("expected BLOCK decision, got %v", d.Decision)
	}
	if len(d.Evidence) != 0 {
		t.Fatalf("expected empty evidence, got %v", d.Evidence)
	}
}

func TestEnforce_EmbeddingUnavailable_FailsClosed(t *testing.T) {
	b := bridge.New()
	_ = b.InsertRule(wildcardForbiddenRule("r1", 1))
	svc := NewEnforcementService(b, &fakeEmbeddingClient{err: errors.New("connection refused")}, nil, nil)

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if !errors.Is(err, decision.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if d.Decision != decision.OutcomeBlock {
		t.Fatalf("expected BLOCK decision, got %v", d.Decision)
	}
}

func TestEnforce_ForbiddenRuleMatches_BlocksAndStops(t *testing.T) {
	b := bridge.New()
	_ = b.InsertRule(wildcardForbiddenRule("r1", 1))
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil)

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Decision != decision.OutcomeBlock {
		t.Fatalf("expected BLOCK, got %v", d.Decision)
	}
	if d.BoundariesEvaluated != 1 {
		t.Fatalf("expected exactly 1 boundary evaluated, got %d", d.BoundariesEvaluated)
	}
}

func TestEnforce_ContextAllowRule_AllowsAndStops(t *testing.T) {
	b := bridge.New()
	r := wildcardForbiddenRule("r1", 1)
	r.PolicyType = rule.PolicyContextAllow
	_ = b.InsertRule(r)
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil)

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Decision != decision.OutcomeAllow {
		t.Fatalf("expected ALLOW, got %v", d.Decision)
	}
}

func TestEnforce_NoRuleShortCircuits_FailsClosedToBlock(t *testing.T) {
	b := bridge.New()
	r := wildcardForbiddenRule("r1", 1)
	r.PolicyType = rule.PolicyContextDefer
	_ = b.InsertRule(r)
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil)

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Decision != decision.OutcomeBlock {
		t.Fatalf("expected default-deny BLOCK, got %v", d.Decision)
	}
	if d.BoundariesEvaluated != 1 {
		t.Fatalf("expected the deferred rule to still count as evaluated, got %d", d.BoundariesEvaluated)
	}
}

func TestEnforce_ModifyOutcome_CarriesModificationSpec(t *testing.T) {
	b := bridge.New()
	r := wildcardForbiddenRule("r1", 1)
	r.PolicyType = rule.PolicyContextAllow
	r.EnforcementClass = rule.ClassTransform
	r.Modification = &rule.ModificationSpec{Kind: "redact_fields", Patch: map[string]interface{}{"field": "ssn"}}
	_ = b.InsertRule(r)
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil)

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Decision != decision.OutcomeModify {
		t.Fatalf("expected MODIFY, got %v", d.Decision)
	}
	if d.Modification == nil || d.Modification.Kind != "redact_fields" {
		t.Fatalf("expected modification spec attached, got %v", d.Modification)
	}
}

func TestEnforce_ExpiredContext_ReturnsError(t *testing.T) {
	b := bridge.New()
	r := wildcardForbiddenRule("r1", 1)
	r.PolicyType = rule.PolicyContextDefer
	_ = b.InsertRule(r)

	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5), delay: 50 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := svc.Enforce(ctx, sampleEvent())
	if err == nil {
		t.Fatalf("expected an error from a pre-expired context")
	}
}

func TestEnforce_RecordsTelemetrySession(t *testing.T) {
	b := bridge.New()
	_ = b.InsertRule(wildcardForbiddenRule("r1", 1))
	recorder := telemetry.NewRecorder(telemetry.DefaultRotationPolicy, telemetry.BackpressureBlockThenDrop, 0)
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, recorder, nil)

	if _, err := svc.Enforce(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := recorder.ByRuleID("r1")
	if len(records) != 1 {
		t.Fatalf("expected 1 telemetry record, got %d", len(records))
	}
}

type fakeRateLimiter struct {
	allow bool
	err   error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string, config outbound.RateLimitConfig) (outbound.RateLimitResult, error) {
	if f.err != nil {
		return outbound.RateLimitResult{}, f.err
	}
	return outbound.RateLimitResult{Allowed: f.allow}, nil
}

func rateLimitRule(id rule.ID) *rule.Rule {
	return &rule.Rule{
		RuleID:           id,
		FamilyID:         rule.FamilyL4ToolGateway,
		Scope:            rule.GlobalScope(),
		Priority:         1,
		Version:          1,
		State:            rule.StateActive,
		EnforcementClass: rule.ClassRateLimit,
	}
}

func TestEnforce_RateLimitDenied_BlocksAndStops(t *testing.T) {
	b := bridge.New()
	_ = b.InsertRule(rateLimitRule("rl1"))
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil).
		WithRateLimiter(&fakeRateLimiter{allow: false})

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Decision != decision.OutcomeBlock {
		t.Errorf("decision = %v, want block", d.Decision)
	}
	if len(d.Evidence) != 1 || d.Evidence[0].Effect != "rate_limited" {
		t.Fatalf("unexpected evidence: %+v", d.Evidence)
	}
}

func TestEnforce_RateLimitAllowed_ContinuesToNextCandidate(t *testing.T) {
	b := bridge.New()
	_ = b.InsertRule(rateLimitRule("rl1"))
	_ = b.InsertRule(wildcardForbiddenRule("r2", 0))
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil).
		WithRateLimiter(&fakeRateLimiter{allow: true})

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Evidence) != 2 {
		t.Fatalf("expected both candidates evaluated, got %d", len(d.Evidence))
	}
	if d.Evidence[0].Effect != "rate_limit_ok" {
		t.Errorf("first evidence effect = %q, want rate_limit_ok", d.Evidence[0].Effect)
	}
}

func TestEnforce_RateLimiterNotConfigured_TreatsAsAlwaysAdmitted(t *testing.T) {
	b := bridge.New()
	_ = b.InsertRule(rateLimitRule("rl1"))
	svc := NewEnforcementService(b, &fakeEmbeddingClient{vec: uniformVector(0.5)}, nil, nil)

	d, err := svc.Enforce(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Decision != decision.OutcomeBlock {
		t.Errorf("decision = %v, want block (default fail-closed, no rule short-circuited)", d.Decision)
	}
	if len(d.Evidence) != 1 || d.Evidence[0].Effect != "rate_limit_unconfigured" {
		t.Fatalf("unexpected evidence: %+v", d.Evidence)
	}
}
