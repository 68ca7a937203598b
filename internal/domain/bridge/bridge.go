// Package bridge multiplexes per-family rule tables behind one unified
// query surface (spec.md §4.3).
package bridge

import (
	"sort"

	"github.com/vectorbound/boundaryplane/internal/domain/family"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// Bridge owns one family.Table per rule family and exposes a single
// lock-free read surface plus writer operations for install/refresh.
// Single-writer-per-family / many-reader discipline: readers never block
// writers and vice versa (spec.md §4.3 Concurrency).
type Bridge struct {
	tables map[rule.FamilyID]*family.Table
}

// New creates a Bridge with an empty table for every known family.
func New() *Bridge {
	b := &Bridge{tables: make(map[rule.FamilyID]*family.Table, len(rule.AllFamilies))}
	for _, f := range rule.AllFamilies {
		b.tables[f] = family.NewTable(f)
	}
	return b
}

// Table returns the table for the given family, or nil if f isn't a known
// family.
func (b *Bridge) Table(f rule.FamilyID) *family.Table {
	return b.tables[f]
}

// WithTable runs fn against the current snapshot of family f's table
// (lock-free read). Returns false if f is not a recognized family.
func (b *Bridge) WithTable(f rule.FamilyID, fn func(*family.Snapshot)) bool {
	t, ok := b.tables[f]
	if !ok {
		return false
	}
	fn(t.Load())
	return true
}

// Install replaces the rule set of family f wholesale, as produced by a
// Deployment Manager activation or a full refresh cycle.
func (b *Bridge) Install(f rule.FamilyID, rules []*rule.Rule) bool {
	t, ok := b.tables[f]
	if !ok {
		return false
	}
	t.Replace(rules)
	return true
}

// InsertRule stages or updates a single rule within its family's table.
func (b *Bridge) InsertRule(r *rule.Rule) error {
	t, ok := b.tables[r.FamilyID]
	if !ok {
		return family.ErrNotFound
	}
	return t.Insert(r)
}

// RemoveRule removes a rule from its family's table.
func (b *Bridge) RemoveRule(f rule.FamilyID, id rule.ID) error {
	t, ok := b.tables[f]
	if !ok {
		return family.ErrNotFound
	}
	return t.Remove(id)
}

// Candidates gathers ACTIVE rules across every family whose scope matches
// in, for the subset of families eligible at the given layer — the
// enforcement engine is responsible for restricting which families it asks
// about per spec.md §3's "layer determines which rule families are
// eligible" invariant.
func (b *Bridge) Candidates(families []rule.FamilyID, in rule.MatchInput) []*rule.Rule {
	var out []*rule.Rule
	for _, f := range families {
		t, ok := b.tables[f]
		if !ok {
			continue
		}
		out = append(out, t.Load().Candidates(in)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// RuleCount sums rule counts across every family table.
func (b *Bridge) RuleCount() int {
	total := 0
	for _, t := range b.tables {
		total += t.Load().Len()
	}
	return total
}

// Stats returns per-family statistics for every table.
func (b *Bridge) Stats() map[rule.FamilyID]family.Stats {
	out := make(map[rule.FamilyID]family.Stats, len(b.tables))
	for f, t := range b.tables {
		out[f] = t.Load().Stats()
	}
	return out
}
