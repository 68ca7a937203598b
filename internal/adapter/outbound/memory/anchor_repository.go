package memory

import (
	"context"
	"sync"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/port/outbound"
)

// AnchorRepository implements outbound.AnchorRepository with an in-memory
// map. Thread-safe for concurrent access. For development/testing and as
// the reference implementation the spec calls for — durable storage is
// a narrow, swappable port (see sqlstore.AnchorRepository).
type AnchorRepository struct {
	mu    sync.RWMutex
	rules map[rule.ID]*rule.Rule
}

// NewAnchorRepository creates an empty in-memory anchor repository.
func NewAnchorRepository() *AnchorRepository {
	return &AnchorRepository{rules: make(map[rule.ID]*rule.Rule)}
}

// Put inserts or replaces a rule's stored definition, keyed by rule id.
func (r *AnchorRepository) Put(rl *rule.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ruleCopy := *rl
	r.rules[rl.RuleID] = &ruleCopy
}

// Delete removes a rule's stored definition.
func (r *AnchorRepository) Delete(id rule.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, id)
}

// ListFamily returns every stored rule for family.
func (r *AnchorRepository) ListFamily(_ context.Context, family rule.FamilyID) ([]*rule.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*rule.Rule
	for _, rl := range r.rules {
		if rl.FamilyID == family {
			ruleCopy := *rl
			out = append(out, &ruleCopy)
		}
	}
	return out, nil
}

// FetchRule returns the stored definition for id, or (nil, false) if
// unknown.
func (r *AnchorRepository) FetchRule(_ context.Context, id rule.ID) (*rule.Rule, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rl, ok := r.rules[id]
	if !ok {
		return nil, false, nil
	}
	ruleCopy := *rl
	return &ruleCopy, true, nil
}

// Compile-time interface verification.
var _ outbound.AnchorRepository = (*AnchorRepository)(nil)
