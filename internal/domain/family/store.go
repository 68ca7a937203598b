package family

import (
	"sync"
	"sync/atomic"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// Table owns one family's current Snapshot behind an atomic pointer.
// Readers call Load and never block; writers call Insert/Remove/Replace,
// which build a new Snapshot and publish it with a single atomic Store
// (grounded on the teacher's PolicyService.snapshot atomic.Value pattern).
type Table struct {
	family rule.FamilyID

	snapshot atomic.Pointer[Snapshot]
	writeMu  sync.Mutex // serializes writers only; readers never take this
}

// NewTable creates an empty table for the given family.
func NewTable(f rule.FamilyID) *Table {
	t := &Table{family: f}
	empty := buildSnapshot(f, map[rule.ID]*rule.Rule{}, nowMs())
	t.snapshot.Store(empty)
	return t
}

// Load returns the current snapshot (lock-free read).
func (t *Table) Load() *Snapshot {
	return t.snapshot.Load()
}

// Insert adds or updates a rule, rejecting stale versions (spec.md §4.2
// failure mode: "Insert of a rule whose rule_id already exists at equal or
// higher version is rejected"). Produces a new snapshot; does not mutate
// the snapshot in place.
func (t *Table) Insert(r *rule.Rule) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	current := t.snapshot.Load()
	if existing, ok := current.Get(r.RuleID); ok && existing.Version >= r.Version {
		return ErrStaleVersion
	}

	next := make(map[rule.ID]*rule.Rule, current.Len()+1)
	for id, existing := range current.rules {
		next[id] = existing
	}
	ruleCopy := *r
	next[r.RuleID] = &ruleCopy

	t.snapshot.Store(buildSnapshot(t.family, next, current.createdMs))
	return nil
}

// Remove deletes a rule by id. A no-op returning ErrNotFound for an
// unknown id, per spec.md §4.2.
func (t *Table) Remove(id rule.ID) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	current := t.snapshot.Load()
	if _, ok := current.Get(id); !ok {
		return ErrNotFound
	}

	next := make(map[rule.ID]*rule.Rule, current.Len())
	for existingID, existing := range current.rules {
		if existingID == id {
			continue
		}
		next[existingID] = existing
	}

	t.snapshot.Store(buildSnapshot(t.family, next, current.createdMs))
	return nil
}

// Replace atomically swaps the entire rule set for this family — used by
// the scheduled/event-driven refresh path (spec.md §4.5) to rebuild from
// the repository without going through per-rule Insert calls.
func (t *Table) Replace(rules []*rule.Rule) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	next := make(map[rule.ID]*rule.Rule, len(rules))
	for _, r := range rules {
		ruleCopy := *r
		next[r.RuleID] = &ruleCopy
	}

	t.snapshot.Store(buildSnapshot(t.family, next, nowMs()))
}
