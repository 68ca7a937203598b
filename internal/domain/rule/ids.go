// Package rule contains the boundary rule domain model: identity, scope,
// lifecycle, enforcement class, and the per-slot weights and thresholds fed
// into the comparison kernel.
package rule


// ID uniquely identifies a rule across its version history (grounded on
// original_source/data_plane's RuleId newtype).
type ID string

// AgentID identifies an agent (actor) a rule's scope may be restricted to.
type AgentID string

// FlowID identifies a flow (tool/method) a rule's scope may be restricted to.
type FlowID string

// FamilyID identifies one of the seven enforcement-layer rule families.
type FamilyID string

// The seven enforcement layer families, L0 through L6 (spec.md GLOSSARY).
const (
	FamilyL0System      FamilyID = "L0_system"
	FamilyL1Input       FamilyID = "L1_input"
	FamilyL2Planner     FamilyID = "L2_planner"
	FamilyL3ModelIO     FamilyID = "L3_model_io"
	FamilyL4ToolGateway FamilyID = "L4_tool_gateway"
	FamilyL5RAG         FamilyID = "L5_rag"
	FamilyL6Egress      FamilyID = "L6_egress"
)

// AllFamilies lists every family the Bridge maintains a table for.
var AllFamilies = []FamilyID{
	FamilyL0System, FamilyL1Input, FamilyL2Planner, FamilyL3ModelIO,
	FamilyL4ToolGateway, FamilyL5RAG, FamilyL6Egress,
}

// Valid reports whether id names one of the seven known families.
func (id FamilyID) Valid() bool {
	for _, f := range AllFamilies {
		if f == id {
			return true
		}
	}
	return false
}

// VersionID identifies one deployed version of a bundle.
type VersionID string

// BundleID identifies a signed, versioned group of rules installed or
// retired atomically.
type BundleID string

// String satisfies fmt.Stringer for log fields.
func (id ID) String() string { return string(id) }
