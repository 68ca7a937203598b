// Package telemetry records per-evaluation session data with
// tamper-detectable hashes, compact and full record variants, segment
// rotation, and a read-only query surface (spec.md §4.7).
package telemetry

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// PayloadRef is an opaque pointer into a shared-memory slice carrying the
// full request/response payload, kept out of the hot telemetry path.
type PayloadRef struct {
	SegmentID uint64
	Offset    uint64
	Size      uint64
}

// Outcome is the enforcement outcome code recorded against a session.
type Outcome int

const (
	OutcomeBlock Outcome = iota
	OutcomeAllow
	OutcomeModify
	OutcomeError
)

// CompactRecord is the fast-path record: enough to reconstruct what
// happened without the full per-rule evidence trail.
type CompactRecord struct {
	Sequence     uint64
	RuleID       rule.ID
	RuleVersion  int64
	Outcome      Outcome
	TimestampMs  int64
	Payloads     []PayloadRef
	DecisionHash string // hex sha256 over the preceding fields
}

// computeDecisionHash hashes the canonical fields of a CompactRecord
// (everything but the hash itself) to make tampering detectable.
func computeDecisionHash(r CompactRecord) string {
	h := sha256.New()
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], r.Sequence)
	h.Write(buf[:])
	h.Write([]byte(r.RuleID))
	binary.BigEndian.PutUint64(buf[:], uint64(r.RuleVersion))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(r.Outcome))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(r.TimestampMs))
	h.Write(buf[:])
	for _, p := range r.Payloads {
		binary.BigEndian.PutUint64(buf[:], p.SegmentID)
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], p.Offset)
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], p.Size)
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHash reports whether r.DecisionHash still matches r's canonical
// fields — true for an unmodified record, false after any field change
// (spec.md §8).
func (r CompactRecord) VerifyHash() bool {
	return r.DecisionHash == computeDecisionHash(CompactRecord{
		Sequence: r.Sequence, RuleID: r.RuleID, RuleVersion: r.RuleVersion,
		Outcome: r.Outcome, TimestampMs: r.TimestampMs, Payloads: r.Payloads,
	})
}

// SubEvent is one rule's contribution to a session's evidence trail.
type SubEvent struct {
	RuleID       rule.ID
	Effect       string // "block" | "allow" | "defer" | "modify"
	Similarities [4]float32
	ElapsedMicro int64
}

// Session is the full per-IntentEvent record: the compact record plus the
// per-rule evidence and a provenance hash over the canonical
// serialization.
type Session struct {
	CompactRecord
	ReceivedAtMs    int64
	Evidence        []SubEvent
	RotationSegment uint64
	ProvenanceHash  string
}

// computeProvenanceHash extends the decision hash over the evidence trail.
func computeProvenanceHash(s Session) string {
	h := sha256.New()
	h.Write([]byte(s.CompactRecord.DecisionHash))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(s.ReceivedAtMs))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], s.RotationSegment)
	h.Write(buf[:])
	for _, e := range s.Evidence {
		h.Write([]byte(e.RuleID))
		h.Write([]byte(e.Effect))
		for _, sim := range e.Similarities {
			binary.BigEndian.PutUint64(buf[:], uint64(uint32(sim*1e6)))
			h.Write(buf[:])
		}
		binary.BigEndian.PutUint64(buf[:], uint64(e.ElapsedMicro))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RotationPolicy bounds a segment by record count only: a segment closes
// once it holds MaxRecordsPerSegment records. Segments are not rotated by
// age.
type RotationPolicy struct {
	MaxRecordsPerSegment int
}

// DefaultRotationPolicy matches the teacher's 100MB-equivalent file
// rotation cadence, expressed here as a record count since segments are
// in-memory.
var DefaultRotationPolicy = RotationPolicy{MaxRecordsPerSegment: 50000}

// BackpressureMode selects what happens when the writer's queue is full
// (spec.md §5, §7 TELEMETRY_FULL).
type BackpressureMode int

const (
	// BackpressureBlockThenDrop evicts the oldest retained segment once the
	// backlog is full, so the newest record is always accepted; DropCount
	// is not incremented in this mode since no individual record is ever
	// rejected, only aged out.
	BackpressureBlockThenDrop BackpressureMode = iota
	// BackpressureSpillToCompact drops the full Session's evidence but
	// still records a CompactRecord, incrementing DropCount once per
	// evidence trail dropped.
	BackpressureSpillToCompact
)
