package bridge

import (
	"testing"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

func activeRule(id rule.ID, f rule.FamilyID, priority int) *rule.Rule {
	return &rule.Rule{
		RuleID:   id,
		FamilyID: f,
		Scope:    rule.GlobalScope(),
		Priority: priority,
		Version:  1,
		State:    rule.StateActive,
	}
}

func TestBridge_InstallAndCandidates(t *testing.T) {
	b := New()

	if err := b.InsertRule(activeRule("r1", rule.FamilyL4ToolGateway, 10)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := b.InsertRule(activeRule("r2", rule.FamilyL1Input, 20)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if got := b.RuleCount(); got != 2 {
		t.Fatalf("expected 2 rules total, got %d", got)
	}

	candidates := b.Candidates([]rule.FamilyID{rule.FamilyL1Input, rule.FamilyL4ToolGateway}, rule.MatchInput{})
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].RuleID != "r2" {
		t.Fatalf("expected r2 (priority 20) first, got %v", candidates[0].RuleID)
	}
}

func TestBridge_Install_ReplacesFamilyWholesale(t *testing.T) {
	b := New()
	_ = b.InsertRule(activeRule("old", rule.FamilyL6Egress, 1))

	ok := b.Install(rule.FamilyL6Egress, []*rule.Rule{activeRule("new", rule.FamilyL6Egress, 1)})
	if !ok {
		t.Fatalf("install returned false for known family")
	}

	snap := b.Table(rule.FamilyL6Egress).Load()
	if snap.Len() != 1 {
		t.Fatalf("expected 1 rule after wholesale replace, got %d", snap.Len())
	}
	if _, ok := snap.Get("old"); ok {
		t.Fatalf("old rule should have been replaced")
	}
}

func TestBridge_UnknownFamily(t *testing.T) {
	b := New()
	if b.Install("L99_bogus", nil) {
		t.Fatalf("expected false for unknown family")
	}
	if err := b.InsertRule(activeRule("x", "L99_bogus", 1)); err == nil {
		t.Fatalf("expected error inserting into unknown family")
	}
}
