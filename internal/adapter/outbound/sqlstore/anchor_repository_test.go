package sqlstore

import (
	"context"
	"testing"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

func openTestRepository(t *testing.T) *AnchorRepository {
	t.Helper()
	repo, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestAnchorRepository_PutAndListFamily(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.Put(ctx, &rule.Rule{RuleID: "r1", FamilyID: rule.FamilyL4ToolGateway, Version: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Put(ctx, &rule.Rule{RuleID: "r2", FamilyID: rule.FamilyL6Egress, Version: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := repo.ListFamily(ctx, rule.FamilyL4ToolGateway)
	if err != nil {
		t.Fatalf("ListFamily: %v", err)
	}
	if len(got) != 1 || got[0].RuleID != "r1" {
		t.Fatalf("expected only r1 in L4, got %v", got)
	}
}

func TestAnchorRepository_FetchRule_UnknownReturnsFalse(t *testing.T) {
	repo := openTestRepository(t)

	_, ok, err := repo.FetchRule(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unknown rule")
	}
}

func TestAnchorRepository_Put_UpsertsOnConflict(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.Put(ctx, &rule.Rule{RuleID: "r1", FamilyID: rule.FamilyL4ToolGateway, Version: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Put(ctx, &rule.Rule{RuleID: "r1", FamilyID: rule.FamilyL6Egress, Version: 2}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rl, ok, err := repo.FetchRule(ctx, "r1")
	if err != nil {
		t.Fatalf("FetchRule: %v", err)
	}
	if !ok {
		t.Fatal("expected rule to exist")
	}
	if rl.FamilyID != rule.FamilyL6Egress || rl.Version != 2 {
		t.Fatalf("expected updated rule, got %+v", rl)
	}
}

func TestAnchorRepository_Delete_RemovesRule(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	if err := repo.Put(ctx, &rule.Rule{RuleID: "r1", FamilyID: rule.FamilyL4ToolGateway, Version: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, ok, _ := repo.FetchRule(ctx, "r1")
	if ok {
		t.Fatal("expected rule to be deleted")
	}
}
