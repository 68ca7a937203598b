// Package outbound declares the ports the domain depends on but does not
// implement: the embedding service and the anchor repository, both
// specified as narrow contracts (spec.md §1, §6).
package outbound

import (
	"context"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// AnchorRepository enumerates rules and fetches their anchor blocks for a
// family. Identity is stable by (rule_id, version): a repository
// implementation may be backed by a SQL store, a file, or memory.
type AnchorRepository interface {
	// ListFamily returns every rule currently known for family, in no
	// particular order; refresh is responsible for sorting/indexing.
	ListFamily(ctx context.Context, family rule.FamilyID) ([]*rule.Rule, error)

	// FetchRule returns a single rule's current definition and anchors, or
	// (nil, false) if unknown.
	FetchRule(ctx context.Context, id rule.ID) (*rule.Rule, bool, error)
}
