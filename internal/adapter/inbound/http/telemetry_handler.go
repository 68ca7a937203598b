package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/domain/telemetry"
)

// sessionSummaryResponse is the wire shape of one QueryTelemetry result
// row (spec.md §6 "QueryTelemetry(filter) → SessionSummary[]").
type sessionSummaryResponse struct {
	Sequence        uint64  `json:"sequence"`
	RuleID          string  `json:"rule_id"`
	Outcome         int     `json:"outcome"`
	TimestampMs     int64   `json:"timestamp_ms"`
	ReceivedAtMs    int64   `json:"received_at_ms"`
	RotationSegment uint64  `json:"rotation_segment"`
	DecisionHash    string  `json:"decision_hash"`
	ProvenanceHash  string  `json:"provenance_hash"`
	EvidenceCount   int     `json:"evidence_count"`
}

func toSessionSummary(s telemetry.Session) sessionSummaryResponse {
	return sessionSummaryResponse{
		Sequence:        s.Sequence,
		RuleID:          string(s.RuleID),
		Outcome:         int(s.Outcome),
		TimestampMs:     s.TimestampMs,
		ReceivedAtMs:    s.ReceivedAtMs,
		RotationSegment: s.RotationSegment,
		DecisionHash:    s.DecisionHash,
		ProvenanceHash:  s.ProvenanceHash,
		EvidenceCount:   len(s.Evidence),
	}
}

// handleQueryTelemetry processes GET /v1/telemetry: filters by exactly one
// of rule_id, sequence range (seq_from/seq_to), or time range
// (from/to, RFC3339) against the telemetry Recorder (spec.md §4.7 query
// surface). With no filter, every retained record is returned.
func (h *EnforcementHandler) handleQueryTelemetry(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		h.respondError(w, http.StatusInternalServerError, "telemetry recorder not configured")
		return
	}

	q := r.URL.Query()

	var sessions []telemetry.Session
	switch {
	case q.Get("rule_id") != "":
		sessions = h.recorder.ByRuleID(rule.ID(q.Get("rule_id")))

	case q.Get("seq_from") != "" || q.Get("seq_to") != "":
		from, err := strconv.ParseUint(q.Get("seq_from"), 10, 64)
		if err != nil && q.Get("seq_from") != "" {
			h.respondError(w, http.StatusBadRequest, "invalid seq_from")
			return
		}
		to, err := strconv.ParseUint(q.Get("seq_to"), 10, 64)
		if err != nil && q.Get("seq_to") != "" {
			h.respondError(w, http.StatusBadRequest, "invalid seq_to")
			return
		}
		if to == 0 {
			to = ^uint64(0)
		}
		sessions = h.recorder.BySequenceRange(from, to)

	case q.Get("from") != "" || q.Get("to") != "":
		from, to, err := parseTimeRange(q.Get("from"), q.Get("to"))
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		sessions = h.recorder.ByTimeRange(from, to)

	default:
		sessions = h.recorder.BySequenceRange(0, ^uint64(0))
	}

	out := make([]sessionSummaryResponse, len(sessions))
	for i, s := range sessions {
		out[i] = toSessionSummary(s)
	}

	h.respondJSON(w, http.StatusOK, out)
}

func parseTimeRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now()

	if fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return from, to, err
		}
		from = t
	}
	if toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return from, to, err
		}
		to = t
	}
	return from, to, nil
}

// handleRefreshRules processes POST /v1/rules/refresh: triggers an
// on-demand rebuild of every family's Bridge table from the anchor
// repository (spec.md §6 "RefreshRules() → RefreshStats").
func (h *EnforcementHandler) handleRefreshRules(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		h.respondError(w, http.StatusInternalServerError, "refresh scheduler not configured")
		return
	}

	stats := h.scheduler.RefreshNow(r.Context())
	if stats.Err != nil {
		h.logger.Error("on-demand refresh failed", "error", stats.Err)
		h.respondError(w, http.StatusInternalServerError, stats.Err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules_refreshed": stats.RulesRefreshed,
		"duration_ms":     stats.Duration.Milliseconds(),
		"timestamp":       stats.Timestamp.Unix(),
	})
}
