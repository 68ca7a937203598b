// Package family implements the per-family rule storage and indexing
// substrate: immutable snapshots published by copy-on-write, read
// lock-free by the enforcement hot path (spec.md §4.2).
package family

import (
	"errors"
	"sort"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// ErrNotFound is returned by Remove/Get when the rule id is unknown.
var ErrNotFound = errors.New("rule not found")

// ErrStaleVersion is returned by Insert when an equal-or-higher version of
// the rule id is already present.
var ErrStaleVersion = errors.New("rule version is not newer than the stored one")

// Stats summarizes one table snapshot.
type Stats struct {
	Family    rule.FamilyID
	RuleCount int
	CreatedMs int64
	UpdatedMs int64
}

// Snapshot is an immutable table of rules for one family, plus secondary
// indices by agent, flow, destination agent, and payload data type. A
// writer builds a new Snapshot and publishes it atomically (see
// Table.Insert, Table.Remove and Table.Replace); readers that already hold a Snapshot are unaffected by
// later writes.
type Snapshot struct {
	family rule.FamilyID

	rules map[rule.ID]*rule.Rule

	byAgent map[rule.AgentID][]rule.ID
	byFlow  map[rule.FlowID][]rule.ID
	byDType map[string][]rule.ID

	createdMs int64
	updatedMs int64
}

// Get returns the rule with the given id, or (nil, false).
func (s *Snapshot) Get(id rule.ID) (*rule.Rule, bool) {
	r, ok := s.rules[id]
	return r, ok
}

// Len returns the number of rules in the snapshot.
func (s *Snapshot) Len() int { return len(s.rules) }

// Stats returns the snapshot's metadata.
func (s *Snapshot) Stats() Stats {
	return Stats{Family: s.family, RuleCount: len(s.rules), CreatedMs: s.createdMs, UpdatedMs: s.updatedMs}
}

// All returns every rule in the snapshot, in descending-priority /
// ascending-id order (spec.md §4.2 tie-break).
func (s *Snapshot) All() []*rule.Rule {
	out := make([]*rule.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sortByPriority(out)
	return out
}

// QueryByAgent returns rule ids scoped to agent, in descending-priority /
// ascending-id order.
func (s *Snapshot) QueryByAgent(agent rule.AgentID) []rule.ID {
	return append([]rule.ID(nil), s.byAgent[agent]...)
}

// QueryByFlow returns rule ids scoped to flow, in descending-priority /
// ascending-id order.
func (s *Snapshot) QueryByFlow(flow rule.FlowID) []rule.ID {
	return append([]rule.ID(nil), s.byFlow[flow]...)
}

// QueryByDType returns rule ids scoped to the payload data type, in
// descending-priority / ascending-id order.
func (s *Snapshot) QueryByDType(dtype string) []rule.ID {
	return append([]rule.ID(nil), s.byDType[dtype]...)
}

// Candidates returns every ACTIVE rule whose scope matches in, merged from
// the global set and the secondary indices, sorted by descending priority
// then ascending rule id, and de-duplicated.
func (s *Snapshot) Candidates(in rule.MatchInput) []*rule.Rule {
	seen := make(map[rule.ID]struct{})
	out := make([]*rule.Rule, 0, 8)

	add := func(ids []rule.ID) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			r, ok := s.rules[id]
			if !ok || !r.State.IsEnforceable() {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, r)
		}
	}

	add(s.byAgent[in.Agent])
	add(s.byFlow[in.Flow])
	add(s.byAgent[in.DestAgent]) // dest-agent rules are indexed alongside agent rules
	add(s.byDType[in.PayloadType])

	for _, r := range s.rules {
		if !r.Scope.Global {
			continue
		}
		if _, dup := seen[r.RuleID]; dup {
			continue
		}
		if !r.State.IsEnforceable() {
			continue
		}
		seen[r.RuleID] = struct{}{}
		out = append(out, r)
	}

	sortByPriority(out)
	return out
}

func sortByPriority(rules []*rule.Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].RuleID < rules[j].RuleID
	})
}

// buildSnapshot constructs a new Snapshot (and its secondary indices) from
// a rule set. Index lists are sorted descending-priority / ascending-id.
func buildSnapshot(family rule.FamilyID, rules map[rule.ID]*rule.Rule, createdMs int64) *Snapshot {
	s := &Snapshot{
		family:    family,
		rules:     rules,
		byAgent:   make(map[rule.AgentID][]rule.ID),
		byFlow:    make(map[rule.FlowID][]rule.ID),
		byDType:   make(map[string][]rule.ID),
		createdMs: createdMs,
		updatedMs: nowMs(),
	}

	for id, r := range rules {
		for agent := range r.Scope.AgentIDs {
			s.byAgent[agent] = append(s.byAgent[agent], id)
		}
		for agent := range r.Scope.DestAgentIDs {
			s.byAgent[agent] = append(s.byAgent[agent], id)
		}
		for flow := range r.Scope.FlowIDs {
			s.byFlow[flow] = append(s.byFlow[flow], id)
		}
		for dtype := range r.Scope.PayloadDTypes {
			s.byDType[dtype] = append(s.byDType[dtype], id)
		}
	}

	sortIndex := func(m map[rule.AgentID][]rule.ID) {
		for k, ids := range m {
			sorted := make([]*rule.Rule, 0, len(ids))
			for _, id := range ids {
				sorted = append(sorted, rules[id])
			}
			sortByPriority(sorted)
			out := make([]rule.ID, len(sorted))
			for i, r := range sorted {
				out[i] = r.RuleID
			}
			m[k] = out
		}
	}
	sortIndex(s.byAgent)

	for k, ids := range s.byFlow {
		sorted := make([]*rule.Rule, 0, len(ids))
		for _, id := range ids {
			sorted = append(sorted, rules[id])
		}
		sortByPriority(sorted)
		out := make([]rule.ID, len(sorted))
		for i, r := range sorted {
			out[i] = r.RuleID
		}
		s.byFlow[k] = out
	}

	for k, ids := range s.byDType {
		sorted := make([]*rule.Rule, 0, len(ids))
		for _, id := range ids {
			sorted = append(sorted, rules[id])
		}
		sortByPriority(sorted)
		out := make([]rule.ID, len(sorted))
		for i, r := range sorted {
			out[i] = r.RuleID
		}
		s.byDType[k] = out
	}

	return s
}

func nowMs() int64 { return time.Now().UnixMilli() }
