package intent

import (
	"testing"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

func sampleEvent() Event {
	return Event{
		ID:            "evt-1",
		SchemaVersion: SchemaVersion,
		TenantID:      "tenant-a",
		Timestamp:     time.Unix(0, 0),
		Actor:         Actor{ID: "agent-7", Kind: ActorAgent},
		Action:        "read",
		Resource:      Resource{Kind: "document", Name: "q3-report"},
		Risk:          Risk{Auth: AuthAuthenticated},
		Layer:         rule.FamilyL4ToolGateway,
		Flow:          "flow-read-docs",
	}
}

func TestEvent_HasLayer(t *testing.T) {
	e := sampleEvent()
	if !e.HasLayer() {
		t.Fatalf("expected valid layer")
	}

	e.Layer = "bogus"
	if e.HasLayer() {
		t.Fatalf("expected invalid layer to be rejected")
	}

	e.Layer = ""
	if e.HasLayer() {
		t.Fatalf("expected empty layer to be rejected")
	}
}

func TestEvent_MatchInput_DerivesScopeFields(t *testing.T) {
	e := sampleEvent()
	in := e.MatchInput()

	if in.Agent != "agent-7" {
		t.Fatalf("expected agent-7, got %v", in.Agent)
	}
	if in.Flow != "flow-read-docs" {
		t.Fatalf("expected flow-read-docs, got %v", in.Flow)
	}
	if in.PayloadType != "document" {
		t.Fatalf("expected payload type document, got %v", in.PayloadType)
	}
}

func TestEvent_MatchInput_PIITakesPrecedenceOverResourceKind(t *testing.T) {
	e := sampleEvent()
	e.Data.PII = true

	in := e.MatchInput()
	if in.PayloadType != "pii" {
		t.Fatalf("expected pii payload type, got %v", in.PayloadType)
	}
}
