// Package service contains application services that wire the domain
// model to its outbound ports.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/decision"
	"github.com/vectorbound/boundaryplane/internal/domain/deployment"
	"github.com/vectorbound/boundaryplane/internal/domain/intent"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/domain/telemetry"
	"github.com/vectorbound/boundaryplane/internal/domain/vector"
	"github.com/vectorbound/boundaryplane/internal/port/outbound"
)

// EmbeddingTimeout is the request-level budget for the embedding call
// (spec.md §4.6: "connect 500 ms, request 1500 ms").
const EmbeddingTimeout = 1500 * time.Millisecond

// EnforcementService implements the Enforcement Engine: resolve layer,
// gather candidates from the Bridge, embed, compare, and interpret each
// rule's policy type in priority order until one short-circuits
// (spec.md §4.6).
type EnforcementService struct {
	bridge      *bridge.Bridge
	embedding   outbound.EmbeddingClient
	telemetry   *telemetry.Recorder
	rateLimiter outbound.RateLimiter
	deployments *deployment.Manager
	logger      *slog.Logger

	// DefaultAllow selects the fail-closed default's polarity: false (the
	// spec default) blocks when nothing short-circuits; true allows.
	// Configured once at startup, not changed per request.
	DefaultAllow bool
}

// NewEnforcementService wires an EnforcementService to its collaborators.
func NewEnforcementService(b *bridge.Bridge, embedding outbound.EmbeddingClient, recorder *telemetry.Recorder, logger *slog.Logger) *EnforcementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnforcementService{bridge: b, embedding: embedding, telemetry: recorder, logger: logger}
}

// WithRateLimiter attaches the outbound.RateLimiter used to admit or
// reject rule.ClassRateLimit candidates. Optional: a service with no
// limiter treats rate_limit-class rules as always-admitted (defer).
func (s *EnforcementService) WithRateLimiter(rl outbound.RateLimiter) *EnforcementService {
	s.rateLimiter = rl
	return s
}

// WithDeploymentManager attaches the deployment.Manager whose canary/AB
// Route decision and per-version health window the hot path feeds.
// Optional: a service with no manager skips routing and health reporting.
func (s *EnforcementService) WithDeploymentManager(m *deployment.Manager) *EnforcementService {
	s.deployments = m
	return s
}

// Enforce runs one IntentEvent through the full pipeline and returns its
// EnforcementDecision. The returned error is non-nil only for the
// fail-closed taxonomy in spec.md §7; decision is still populated (BLOCK,
// with whatever partial evidence was collected) in that case.
func (s *EnforcementService) Enforce(ctx context.Context, event *intent.Event) (d decision.EnforcementDecision, err error) {
	start := time.Now()

	// Resolve which deployed version is serving this family, if a
	// deployment manager is attached, and feed it back its outcome so its
	// health window and CheckAutoRollback (spec.md §4.4) have real data
	// instead of staying empty forever.
	var routedVersion rule.VersionID
	if s.deployments != nil {
		if bundleID, versionID, ok := s.deployments.ActiveForFamily(event.Layer); ok {
			routedVersion = versionID
			if routed, ok := s.deployments.Route(bundleID, event.Actor.ID); ok {
				routedVersion = routed
			}
		}
	}
	defer func() {
		if routedVersion != "" {
			s.deployments.RecordOutcome(routedVersion, time.Since(start), err != nil)
		}
	}()

	if !event.HasLayer() {
		return s.failClosed(nil, start), decision.ErrMissingLayer
	}

	candidates := s.bridge.Candidates([]rule.FamilyID{event.Layer}, event.MatchInput())

	embedCtx, cancel := context.WithTimeout(ctx, EmbeddingTimeout)
	defer cancel()

	intentVector, err := s.embedding.Encode(embedCtx, event)
	if err != nil {
		s.logger.Error("embedding call failed", "event_id", event.ID, "error", err)
		return s.failClosed(nil, start), decision.ErrEmbeddingUnavailable
	}

	var evidence []decision.Evidence
	var finalOutcome *decision.Outcome
	var modification *rule.ModificationSpec
	var lastSimilarities [4]float32
	evaluated := uint32(0)

	for _, r := range candidates {
		select {
		case <-ctx.Done():
			d := s.partial(evidence, evaluated, start)
			s.record(event, d, start)
			return d, decision.ErrTimeout
		default:
		}

		if r.EnforcementClass == rule.ClassRateLimit {
			evaluated++
			ev, stop := s.evaluateRateLimit(ctx, event, r)
			evidence = append(evidence, ev)
			if stop {
				o := ev.Decision
				finalOutcome = &o
				break
			}
			continue
		}

		envelope := r.Envelope(intentVector)
		result := vector.Compare(&envelope)
		evaluated++
		lastSimilarities = result.SliceSimilarities

		effect, outcome, stop := interpretPolicy(r.PolicyType, result.Allow)
		ev := decision.Evidence{
			BoundaryID:   r.RuleID,
			BoundaryName: string(r.RuleID),
			Effect:       effect,
			Decision:     outcome,
			Similarities: result.SliceSimilarities,
		}
		if r.DriftThreshold > 0 && driftDetected(result.SliceSimilarities, r.DriftThreshold) {
			ev.Effect = ev.Effect + "+drift"
		}
		evidence = append(evidence, ev)

		if stop {
			o := outcome
			finalOutcome = &o
			if o == decision.OutcomeAllow && r.Modification != nil && !r.Modification.IsEmpty() {
				finalOutcome = outcomeModify()
				modification = r.Modification
			}
			break
		}
	}

	d = decision.EnforcementDecision{
		BoundariesEvaluated: evaluated,
		TimestampUnix:       float64(start.UnixNano()) / 1e9,
		Evidence:            evidence,
		SliceSimilarities:   lastSimilarities,
		Modification:        modification,
	}
	if finalOutcome != nil {
		d.Decision = *finalOutcome
	} else if s.DefaultAllow {
		d.Decision = decision.OutcomeAllow
	} else {
		d.Decision = decision.OutcomeBlock
	}

	s.record(event, d, start)
	return d, nil
}

func outcomeModify() *decision.Outcome {
	o := decision.OutcomeModify
	return &o
}

// interpretPolicy maps a rule's PolicyType and the kernel's allow bit onto
// (effect label, outcome, stop?) per spec.md §4.6 step 5.
func interpretPolicy(pt rule.PolicyType, allow bool) (effect string, outcome decision.Outcome, stop bool) {
	switch pt {
	case rule.PolicyForbidden:
		if allow {
			return "block", decision.OutcomeBlock, true
		}
		return "defer", decision.OutcomeBlock, false
	case rule.PolicyContextAllow:
		if allow {
			return "allow", decision.OutcomeAllow, true
		}
		return "defer", decision.OutcomeBlock, false
	case rule.PolicyContextDeny:
		if allow {
			return "block", decision.OutcomeBlock, true
		}
		return "defer", decision.OutcomeBlock, false
	default: // rule.PolicyContextDefer
		return "defer", decision.OutcomeBlock, false
	}
}

// evaluateRateLimit checks a rule.ClassRateLimit candidate as a hard
// admission gate against s.rateLimiter, instead of the similarity kernel.
// A denied request blocks and short-circuits; an allowed one is recorded
// as evidence and evaluation continues to the next candidate. A rule
// carries no limiter config when s.rateLimiter is nil — it is treated as
// always-admitted.
func (s *EnforcementService) evaluateRateLimit(ctx context.Context, event *intent.Event, r *rule.Rule) (decision.Evidence, bool) {
	base := decision.Evidence{BoundaryID: r.RuleID, BoundaryName: string(r.RuleID)}

	if s.rateLimiter == nil {
		base.Effect = "rate_limit_unconfigured"
		base.Decision = decision.OutcomeAllow
		return base, false
	}

	key := rateLimitKey(event, r)
	cfg := rateLimitConfigFromParams(r.FamilyParams)

	result, err := s.rateLimiter.Allow(ctx, key, cfg)
	if err != nil {
		s.logger.Error("rate limiter check failed", "rule_id", r.RuleID, "error", err)
		base.Effect = "rate_limit_error"
		base.Decision = decision.OutcomeBlock
		return base, true
	}
	if !result.Allowed {
		base.Effect = "rate_limited"
		base.Decision = decision.OutcomeBlock
		return base, true
	}
	base.Effect = "rate_limit_ok"
	base.Decision = decision.OutcomeAllow
	return base, false
}

// rateLimitKey scopes the limiter bucket to the rule and the actor whose
// traffic it gates, preferring the caller-supplied RateLimitContext's
// agent id when present (spec.md §3).
func rateLimitKey(event *intent.Event, r *rule.Rule) string {
	agent := event.Actor.ID
	if event.RateLimit != nil && event.RateLimit.AgentID != "" {
		agent = string(event.RateLimit.AgentID)
	}
	return string(r.RuleID) + ":" + agent
}

// rateLimitConfigFromParams reads rate/burst/period_ms out of a rule's
// opaque FamilyParams, falling back to a conservative default when absent.
func rateLimitConfigFromParams(params map[string]interface{}) outbound.RateLimitConfig {
	cfg := outbound.RateLimitConfig{Rate: 10, Burst: 10, Period: time.Minute}
	if params == nil {
		return cfg
	}
	if v, ok := params["rate"].(float64); ok && v > 0 {
		cfg.Rate = int(v)
	}
	if v, ok := params["burst"].(float64); ok && v > 0 {
		cfg.Burst = int(v)
	}
	if v, ok := params["period_ms"].(float64); ok && v > 0 {
		cfg.Period = time.Duration(v) * time.Millisecond
	}
	return cfg
}

func driftDetected(similarities [4]float32, threshold float32) bool {
	for _, sim := range similarities {
		if sim < threshold {
			return true
		}
	}
	return false
}

// failClosed returns the BLOCK decision the fail-closed taxonomy requires,
// with no evidence (spec.md §7 MISSING_LAYER/EMBEDDING_UNAVAILABLE).
func (s *EnforcementService) failClosed(evidence []decision.Evidence, start time.Time) decision.EnforcementDecision {
	return decision.EnforcementDecision{
		Decision:            decision.OutcomeBlock,
		BoundariesEvaluated: 0,
		TimestampUnix:       float64(start.UnixNano()) / 1e9,
		Evidence:            evidence,
	}
}

// partial returns the BLOCK decision with whatever evidence had been
// collected before a deadline fired (spec.md §7 TIMEOUT).
func (s *EnforcementService) partial(evidence []decision.Evidence, evaluated uint32, start time.Time) decision.EnforcementDecision {
	return decision.EnforcementDecision{
		Decision:            decision.OutcomeBlock,
		BoundariesEvaluated: evaluated,
		TimestampUnix:       float64(start.UnixNano()) / 1e9,
		Evidence:            evidence,
	}
}

// record writes the session to telemetry. A nil recorder (engine wired
// without telemetry, e.g. in a unit test) is a no-op. A telemetry failure
// never changes the decision already computed (spec.md §7 invariant).
func (s *EnforcementService) record(event *intent.Event, d decision.EnforcementDecision, start time.Time) {
	if s.telemetry == nil {
		return
	}

	var subEvents []telemetry.SubEvent
	for _, ev := range d.Evidence {
		subEvents = append(subEvents, telemetry.SubEvent{
			RuleID:       ev.BoundaryID,
			Effect:       ev.Effect,
			Similarities: ev.Similarities,
		})
	}

	var leadRuleID rule.ID
	if len(d.Evidence) > 0 {
		leadRuleID = d.Evidence[len(d.Evidence)-1].BoundaryID
	}

	s.telemetry.Append(telemetry.CompactRecord{
		RuleID:      leadRuleID,
		Outcome:     telemetry.Outcome(d.Decision),
		TimestampMs: start.UnixMilli(),
	}, start, subEvents, nil)

	s.logger.Debug("enforcement decision recorded",
		"event_id", event.ID, "decision", d.Decision, "boundaries_evaluated", d.BoundariesEvaluated)
}
