package rule

// Scope defines where a rule applies: globally, or restricted to a set of
// agent ids, flow ids, destination agent ids, or payload data types.
// Grounded on original_source/data_plane/tupl_dp/rule_engine's RuleScope.
type Scope struct {
	Global         bool
	AgentIDs       map[AgentID]struct{}
	FlowIDs        map[FlowID]struct{}
	DestAgentIDs   map[AgentID]struct{}
	PayloadDTypes  map[string]struct{}
}

// GlobalScope returns a scope that matches every agent, flow, destination,
// and payload type.
func GlobalScope() Scope {
	return Scope{Global: true}
}

// NewScope returns an empty, non-global scope ready to have entries added.
func NewScope() Scope {
	return Scope{
		AgentIDs:      make(map[AgentID]struct{}),
		FlowIDs:       make(map[FlowID]struct{}),
		DestAgentIDs:  make(map[AgentID]struct{}),
		PayloadDTypes: make(map[string]struct{}),
	}
}

// AddAgent restricts the scope to (additionally) include agent.
func (s *Scope) AddAgent(agent AgentID) {
	if s.AgentIDs == nil {
		s.AgentIDs = make(map[AgentID]struct{})
	}
	s.AgentIDs[agent] = struct{}{}
}

// AddFlow restricts the scope to (additionally) include flow.
func (s *Scope) AddFlow(flow FlowID) {
	if s.FlowIDs == nil {
		s.FlowIDs = make(map[FlowID]struct{})
	}
	s.FlowIDs[flow] = struct{}{}
}

// AddDType restricts the scope to (additionally) include the payload data
// type dtype.
func (s *Scope) AddDType(dtype string) {
	if s.PayloadDTypes == nil {
		s.PayloadDTypes = make(map[string]struct{})
	}
	s.PayloadDTypes[dtype] = struct{}{}
}

// MatchInput carries the identifying fields of an IntentEvent the scope is
// tested against. Only the non-zero fields participate in the match.
type MatchInput struct {
	Agent       AgentID
	Flow        FlowID
	DestAgent   AgentID
	PayloadType string
}

// Matches reports whether the scope applies to the given event fields: the
// scope is global, or any of agent/flow/destination-agent/payload-type is a
// member of the corresponding set.
func (s Scope) Matches(in MatchInput) bool {
	if s.Global {
		return true
	}
	if in.Agent != "" {
		if _, ok := s.AgentIDs[in.Agent]; ok {
			return true
		}
	}
	if in.Flow != "" {
		if _, ok := s.FlowIDs[in.Flow]; ok {
			return true
		}
	}
	if in.DestAgent != "" {
		if _, ok := s.DestAgentIDs[in.DestAgent]; ok {
			return true
		}
	}
	if in.PayloadType != "" {
		if _, ok := s.PayloadDTypes[in.PayloadType]; ok {
			return true
		}
	}
	return false
}
