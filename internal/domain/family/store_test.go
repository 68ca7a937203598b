package family

import (
	"sync"
	"testing"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

func newActiveRule(id rule.ID, priority int, scope rule.Scope) *rule.Rule {
	return &rule.Rule{
		RuleID:   id,
		FamilyID: rule.FamilyL4ToolGateway,
		Scope:    scope,
		Priority: priority,
		Version:  1,
		State:    rule.StateActive,
	}
}

func TestTable_InsertRemove_ReaderSeesConsistentSnapshot(t *testing.T) {
	tbl := NewTable(rule.FamilyL4ToolGateway)

	if err := tbl.Insert(newActiveRule("r1", 10, rule.GlobalScope())); err != nil {
		t.Fatalf("insert r1: %v", err)
	}

	before := tbl.Load()
	if before.Len() != 1 {
		t.Fatalf("expected 1 rule, got %d", before.Len())
	}

	if err := tbl.Insert(newActiveRule("r2", 20, rule.GlobalScope())); err != nil {
		t.Fatalf("insert r2: %v", err)
	}

	// The snapshot acquired before the second insert must be unaffected.
	if before.Len() != 1 {
		t.Fatalf("old snapshot mutated: now has %d rules", before.Len())
	}

	after := tbl.Load()
	if after.Len() != 2 {
		t.Fatalf("expected 2 rules after insert, got %d", after.Len())
	}

	if err := tbl.Remove("r1"); err != nil {
		t.Fatalf("remove r1: %v", err)
	}
	if tbl.Load().Len() != 1 {
		t.Fatalf("expected 1 rule after remove")
	}
}

func TestTable_Remove_UnknownID_NoOp(t *testing.T) {
	tbl := NewTable(rule.FamilyL4ToolGateway)
	if err := tbl.Remove("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTable_Insert_StaleVersionRejected(t *testing.T) {
	tbl := NewTable(rule.FamilyL4ToolGateway)
	r := newActiveRule("r1", 10, rule.GlobalScope())
	r.Version = 3
	if err := tbl.Insert(r); err != nil {
		t.Fatalf("initial insert: %v", err)
	}

	stale := newActiveRule("r1", 10, rule.GlobalScope())
	stale.Version = 3
	if err := tbl.Insert(stale); err != ErrStaleVersion {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}
}

func TestSnapshot_Candidates_PriorityOrderAndDedup(t *testing.T) {
	tbl := NewTable(rule.FamilyL4ToolGateway)
	agentScope := rule.NewScope()
	agentScope.AddAgent("agent-1")

	_ = tbl.Insert(newActiveRule("low", 5, rule.GlobalScope()))
	_ = tbl.Insert(newActiveRule("high", 50, agentScope))
	_ = tbl.Insert(newActiveRule("mid", 20, rule.GlobalScope()))

	candidates := tbl.Load().Candidates(rule.MatchInput{Agent: "agent-1"})
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].RuleID != "high" || candidates[1].RuleID != "mid" || candidates[2].RuleID != "low" {
		t.Fatalf("expected priority-descending order, got %v, %v, %v", candidates[0].RuleID, candidates[1].RuleID, candidates[2].RuleID)
	}
}

func TestSnapshot_Candidates_MatchesByPayloadDType(t *testing.T) {
	tbl := NewTable(rule.FamilyL4ToolGateway)
	dtypeScope := rule.NewScope()
	dtypeScope.AddDType("pii")

	_ = tbl.Insert(newActiveRule("dtype-only", 10, dtypeScope))
	_ = tbl.Insert(newActiveRule("unrelated", 5, rule.NewScope()))

	candidates := tbl.Load().Candidates(rule.MatchInput{PayloadType: "pii"})
	if len(candidates) != 1 || candidates[0].RuleID != "dtype-only" {
		t.Fatalf("expected only the dtype-scoped rule, got %v", candidates)
	}

	none := tbl.Load().Candidates(rule.MatchInput{PayloadType: "other"})
	if len(none) != 0 {
		t.Fatalf("expected no candidates for an unmatched payload type, got %v", none)
	}
}

func TestSnapshot_Candidates_ExcludesNonActive(t *testing.T) {
	tbl := NewTable(rule.FamilyL4ToolGateway)
	paused := newActiveRule("paused", 100, rule.GlobalScope())
	paused.State = rule.StatePaused
	_ = tbl.Insert(paused)
	_ = tbl.Insert(newActiveRule("active", 1, rule.GlobalScope()))

	candidates := tbl.Load().Candidates(rule.MatchInput{})
	if len(candidates) != 1 || candidates[0].RuleID != "active" {
		t.Fatalf("expected only the active rule, got %v", candidates)
	}
}

func TestTable_ConcurrentReadersAndWriters(t *testing.T) {
	tbl := NewTable(rule.FamilyL4ToolGateway)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = tbl.Load().Len()
			}
		}(i)
	}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = tbl.Insert(newActiveRule(rule.ID(string(rune('a'+n%26))), n, rule.GlobalScope()))
		}(i)
	}

	wg.Wait()
	if tbl.Load().Stats().Family != rule.FamilyL4ToolGateway {
		t.Fatalf("unexpected family in stats")
	}
}
