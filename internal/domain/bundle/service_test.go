package bundle

import (
	"testing"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

func TestService_Create_StagesValidRules(t *testing.T) {
	s, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	b, report := s.Create("my-bundle", []*rule.Rule{baseRule("r1", rule.FamilyL4ToolGateway, 1)})
	if !report.Valid {
		t.Fatalf("expected valid bundle, got errors: %v", report.Errors)
	}
	if b.Rules[0].State != rule.StateStaged {
		t.Fatalf("expected rule staged, got %v", b.Rules[0].State)
	}
	if b.Rules[0].Version != 1 {
		t.Fatalf("expected version 1, got %d", b.Rules[0].Version)
	}
}

func TestService_Create_RejectsInvalidBundleWithoutStoringIt(t *testing.T) {
	s, _ := NewService()

	_, report := s.Create("bad-bundle", []*rule.Rule{
		baseRule("r1", rule.FamilyL4ToolGateway, 1),
		baseRule("r1", rule.FamilyL4ToolGateway, 2),
	})
	if report.Valid {
		t.Fatalf("expected invalid bundle")
	}
}

func TestService_Update_BumpsVersionOfExistingRules(t *testing.T) {
	s, _ := NewService()
	b, _ := s.Create("my-bundle", []*rule.Rule{baseRule("r1", rule.FamilyL4ToolGateway, 1)})

	updated, report := s.Update(b.ID, []*rule.Rule{baseRule("r1", rule.FamilyL4ToolGateway, 5)})
	if !report.Valid {
		t.Fatalf("expected valid update, got errors: %v", report.Errors)
	}
	if updated.Rules[0].Version != 2 {
		t.Fatalf("expected version bumped to 2, got %d", updated.Rules[0].Version)
	}
}

func TestService_Revoke_IsPermanentAndBlocksFurtherUpdates(t *testing.T) {
	s, _ := NewService()
	b, _ := s.Create("my-bundle", []*rule.Rule{baseRule("r1", rule.FamilyL4ToolGateway, 1)})

	if err := s.Revoke(b.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	got, _ := s.Get(b.ID)
	if got.Rules[0].State != rule.StateRevoked {
		t.Fatalf("expected rule revoked, got %v", got.Rules[0].State)
	}

	_, report := s.Update(b.ID, []*rule.Rule{baseRule("r1", rule.FamilyL4ToolGateway, 2)})
	if report.Valid {
		t.Fatalf("expected update on a revoked bundle to fail")
	}
}

func TestService_Deactivate_PausesWithoutRevoking(t *testing.T) {
	s, _ := NewService()
	b, _ := s.Create("my-bundle", []*rule.Rule{baseRule("r1", rule.FamilyL4ToolGateway, 1)})

	if err := s.Deactivate(b.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ := s.Get(b.ID)
	if got.Rules[0].State != rule.StatePaused {
		t.Fatalf("expected rule paused, got %v", got.Rules[0].State)
	}
	if got.Revoked {
		t.Fatalf("expected bundle not revoked after deactivate")
	}
}

func TestService_Operations_UnknownID_ReturnErrNotFound(t *testing.T) {
	s, _ := NewService()
	if err := s.Deactivate("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Revoke("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
