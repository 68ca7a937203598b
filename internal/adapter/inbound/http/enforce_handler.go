package http

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vectorbound/boundaryplane/internal/domain/decision"
	"github.com/vectorbound/boundaryplane/internal/domain/intent"
)

// evidenceResponse mirrors one entry of EnforcementDecision.evidence
// (spec.md §6).
type evidenceResponse struct {
	BoundaryID   string     `json:"boundary_id"`
	BoundaryName string     `json:"boundary_name"`
	Effect       string     `json:"effect"`
	Decision     int        `json:"decision"`
	Similarities [4]float32 `json:"similarities"`
}

// enforcementDecisionResponse is the wire shape of EnforcementDecision
// (spec.md §6 "EnforcementDecision JSON").
type enforcementDecisionResponse struct {
	Decision            int                `json:"decision"`
	SliceSimilarities   [4]float32         `json:"slice_similarities"`
	BoundariesEvaluated uint32             `json:"boundaries_evaluated"`
	Timestamp           float64            `json:"timestamp"`
	Evidence            []evidenceResponse `json:"evidence"`
	Modification        interface{}        `json:"modification,omitempty"`
}

func toDecisionResponse(d decision.EnforcementDecision) enforcementDecisionResponse {
	evidence := make([]evidenceResponse, len(d.Evidence))
	for i, e := range d.Evidence {
		evidence[i] = evidenceResponse{
			BoundaryID:   string(e.BoundaryID),
			BoundaryName: e.BoundaryName,
			Effect:       e.Effect,
			Decision:     int(e.Decision),
			Similarities: e.Similarities,
		}
	}
	resp := enforcementDecisionResponse{
		Decision:            int(d.Decision),
		SliceSimilarities:   d.SliceSimilarities,
		BoundariesEvaluated: d.BoundariesEvaluated,
		Timestamp:           d.TimestampUnix,
		Evidence:            evidence,
	}
	if d.Modification != nil {
		resp.Modification = d.Modification
	}
	return resp
}

// handleEnforce processes POST /v1/enforce: one IntentEvent through the
// Enforcement Engine (spec.md §4.6 contract). The fail-closed taxonomy
// (spec.md §7) always yields a BLOCK decision alongside a non-nil error —
// the response is still 200 with the decision body, since the caller's
// contract is "decision plus evidence", not an HTTP status code.
func (h *EnforcementHandler) handleEnforce(w http.ResponseWriter, r *http.Request) {
	if h.enforcement == nil {
		h.respondError(w, http.StatusInternalServerError, "enforcement service not configured")
		return
	}

	var event intent.Event
	if err := h.readJSON(r, &event); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "enforce")
	defer span.End()
	span.SetAttributes(
		attribute.String("boundaryplane.event_id", event.ID),
		attribute.String("boundaryplane.layer", string(event.Layer)),
	)

	d, err := h.enforcement.Enforce(ctx, &event)
	if err != nil {
		kind, _ := decision.KindOf(err)
		span.SetStatus(codes.Error, string(kind))
		h.logger.Warn("enforcement fail-closed", "event_id", event.ID, "kind", kind, "error", err)
	}
	if h.metrics != nil {
		h.metrics.DecisionsTotal.WithLabelValues(outcomeLabel(d.Decision)).Inc()
	}

	h.respondJSON(w, http.StatusOK, toDecisionResponse(d))
}

func outcomeLabel(o decision.Outcome) string {
	switch o {
	case decision.OutcomeAllow:
		return "allow"
	case decision.OutcomeModify:
		return "modify"
	default:
		return "block"
	}
}
