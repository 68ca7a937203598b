package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// Recorder is an append-only writer of Session records, segmented by
// RotationPolicy, with a bounded backlog and configurable backpressure
// handling. Grounded on the teacher's file-based audit store: a
// mutex-guarded append path plus an in-memory cache of recent records,
// adapted here to segment-on-count rotation instead of date/size file
// rotation since sessions are held in memory rather than on disk.
type Recorder struct {
	mu sync.Mutex

	policy      RotationPolicy
	backpressure BackpressureMode
	maxBacklog  int

	sequence uint64 // next sequence number to assign

	segments       []*segment
	currentSegment *segment

	dropCount atomic.Uint64
}

type segment struct {
	id      uint64
	records []Session
}

// NewRecorder creates a Recorder. maxBacklog bounds the total number of
// retained records across all segments still held in memory; once
// exceeded, the oldest segment is evicted.
func NewRecorder(policy RotationPolicy, backpressure BackpressureMode, maxBacklog int) *Recorder {
	if policy.MaxRecordsPerSegment <= 0 {
		policy = DefaultRotationPolicy
	}
	if maxBacklog <= 0 {
		maxBacklog = 10 * policy.MaxRecordsPerSegment
	}
	r := &Recorder{policy: policy, backpressure: backpressure, maxBacklog: maxBacklog}
	r.currentSegment = &segment{id: 1}
	r.segments = []*segment{r.currentSegment}
	return r
}

// Append records one full session. meta carries the caller-supplied
// RuleID/RuleVersion/Outcome/TimestampMs fields (its Sequence, Payloads,
// and DecisionHash are ignored and recomputed); receivedAt, evidence, and
// payloads are supplied separately. Append computes both hashes and
// assigns the sequence number and rotation segment.
func (r *Recorder) Append(meta CompactRecord, receivedAt time.Time, evidence []SubEvent, payloads []PayloadRef) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	compact := CompactRecord{
		Sequence:    r.sequence,
		RuleID:      meta.RuleID,
		RuleVersion: meta.RuleVersion,
		Outcome:     meta.Outcome,
		TimestampMs: meta.TimestampMs,
		Payloads:    payloads,
	}
	compact.DecisionHash = computeDecisionHash(compact)

	if r.currentSegment.full(r.policy) {
		r.rotateLocked()
	}

	s := Session{
		CompactRecord:   compact,
		ReceivedAtMs:    receivedAt.UnixMilli(),
		RotationSegment: r.currentSegment.id,
	}
	if r.backpressure == BackpressureSpillToCompact && r.overBacklogLocked() {
		// Drop the evidence trail but keep the compact record — caller
		// still gets a decision, per spec.md §7 TELEMETRY_FULL policy.
		r.dropCount.Add(1)
	} else {
		s.Evidence = evidence
	}
	s.ProvenanceHash = computeProvenanceHash(s)

	r.currentSegment.records = append(r.currentSegment.records, s)
	r.evictOldestIfOverBacklogLocked()

	return s
}

func (s *segment) full(policy RotationPolicy) bool {
	return len(s.records) >= policy.MaxRecordsPerSegment
}

func (r *Recorder) rotateLocked() {
	next := &segment{id: r.currentSegment.id + 1}
	r.segments = append(r.segments, next)
	r.currentSegment = next
}

func (r *Recorder) overBacklogLocked() bool {
	total := 0
	for _, seg := range r.segments {
		total += len(seg.records)
	}
	return total >= r.maxBacklog
}

func (r *Recorder) evictOldestIfOverBacklogLocked() {
	for r.overBacklogLocked() && len(r.segments) > 1 {
		r.segments = r.segments[1:]
	}
}

// DropCount returns the number of records whose evidence trail was dropped
// under BackpressureSpillToCompact. Always zero under
// BackpressureBlockThenDrop, which ages out whole segments instead of
// dropping individual records.
func (r *Recorder) DropCount() uint64 {
	return r.dropCount.Load()
}

// BySequenceRange returns records with sequence in [from, to], inclusive,
// across all retained segments, in ascending sequence order.
func (r *Recorder) BySequenceRange(from, to uint64) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, seg := range r.segments {
		for _, s := range seg.records {
			if s.Sequence >= from && s.Sequence <= to {
				out = append(out, s)
			}
		}
	}
	return out
}

// ByRuleID returns every retained record attributed to id.
func (r *Recorder) ByRuleID(id rule.ID) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Session
	for _, seg := range r.segments {
		for _, s := range seg.records {
			if s.RuleID == id {
				out = append(out, s)
			}
		}
	}
	return out
}

// ByTimeRange returns records received within [from, to], inclusive.
func (r *Recorder) ByTimeRange(from, to time.Time) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromMs, toMs := from.UnixMilli(), to.UnixMilli()
	var out []Session
	for _, seg := range r.segments {
		for _, s := range seg.records {
			if s.ReceivedAtMs >= fromMs && s.ReceivedAtMs <= toMs {
				out = append(out, s)
			}
		}
	}
	return out
}

// CurrentSegment returns the id of the segment currently being written.
func (r *Recorder) CurrentSegment() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSegment.id
}
