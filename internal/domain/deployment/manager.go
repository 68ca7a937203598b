package deployment

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/vectorbound/boundaryplane/internal/domain/bridge"
	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

var (
	// ErrUnknownVersion is returned when a version_id has no registered
	// Deployment.
	ErrUnknownVersion = errors.New("unknown deployment version")
	// ErrRollbackIneligible is returned by Rollback when the deployment is
	// not in Active or Failing state, or has no predecessor.
	ErrRollbackIneligible = errors.New("deployment is not eligible for rollback")
	// ErrInvalidStrategy is returned when a bundle is deployed with
	// malformed strategy parameters (e.g. canary percent outside [0,1]).
	ErrInvalidStrategy = errors.New("invalid deployment strategy parameters")
)

// Manager owns the version registry and per-version health windows, and
// drives activation onto a Bridge. Internal state is guarded by a single
// mutex, acquired only by cold-path operations (deploy/activate/rollback)
// and by sampled health updates from workers (spec.md §5).
type Manager struct {
	mu sync.Mutex

	bridge *bridge.Bridge
	logger *slog.Logger

	versions map[rule.VersionID]*Deployment
	health   map[rule.VersionID]*healthWindow

	// activeByBundle tracks the current Active version per bundle, to
	// enforce "at most one Active deployment per bundle" and to find a
	// rollback predecessor.
	activeByBundle map[rule.BundleID]rule.VersionID
}

// NewManager creates an empty deployment registry bound to bridge.
func NewManager(b *bridge.Bridge, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bridge:         b,
		logger:         logger,
		versions:       make(map[rule.VersionID]*Deployment),
		health:         make(map[rule.VersionID]*healthWindow),
		activeByBundle: make(map[rule.BundleID]rule.VersionID),
	}
}

// Deploy validates the strategy, registers a new Deployment in Staging
// state for the given bundle/family/rule set, and returns its version id.
// It does not install the rules into the Bridge; call Activate to do that.
func (m *Manager) Deploy(bundleID rule.BundleID, family rule.FamilyID, rules []*rule.Rule, strategy Strategy, thresholds HealthThresholds) (rule.VersionID, error) {
	if err := validateStrategy(strategy); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	version := rule.VersionID(uuid.NewString())
	d := &Deployment{
		VersionID:  version,
		BundleID:   bundleID,
		Family:     family,
		Strategy:   strategy,
		State:      StateStaging,
		Thresholds: thresholds,
		CreatedAt:  time.Now(),
		Previous:   m.activeByBundle[bundleID],
		Rules:      rules,
	}
	m.versions[version] = d
	m.health[version] = newHealthWindow()

	m.logger.Info("deployment registered",
		"version_id", version, "bundle_id", bundleID, "family", family,
		"strategy", strategy.Kind, "state", d.State)

	return version, nil
}

func validateStrategy(s Strategy) error {
	switch s.Kind {
	case StrategyCanary:
		if s.Percent < 0 || s.Percent > 1 {
			return fmt.Errorf("%w: canary percent %v out of [0,1]", ErrInvalidStrategy, s.Percent)
		}
	case StrategyAB:
		if s.Split < 0 || s.Split > 1 {
			return fmt.Errorf("%w: ab split %v out of [0,1]", ErrInvalidStrategy, s.Split)
		}
	case StrategyScheduled:
		if s.ActivateAt.IsZero() {
			return fmt.Errorf("%w: scheduled strategy requires activate_at", ErrInvalidStrategy)
		}
	case StrategyBlueGreen:
		// no extra parameters to validate
	default:
		return fmt.Errorf("%w: unknown strategy kind %q", ErrInvalidStrategy, s.Kind)
	}
	return nil
}

// Activate transitions a Pending/Staging deployment to Rolling then Active,
// marking its rules Active and installing them into the Bridge. For
// BlueGreen and Scheduled, the previous Active version for the same bundle
// moves to Retired. For Canary and AB, the previous version remains Active
// alongside the new one so Route can split traffic between them.
func (m *Manager) Activate(version rule.VersionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.versions[version]
	if !ok {
		return ErrUnknownVersion
	}

	d.State = StateRolling
	for _, r := range d.Rules {
		r.State = rule.StateActive
	}
	m.bridge.Install(d.Family, d.Rules)
	d.State = StateActive
	d.ActivatedAt = time.Now()

	if prevID := m.activeByBundle[d.BundleID]; prevID != "" && prevID != version {
		if d.Strategy.Kind == StrategyBlueGreen || d.Strategy.Kind == StrategyScheduled {
			if prev, ok := m.versions[prevID]; ok {
				prev.State = StateRetired
			}
		}
	}
	m.activeByBundle[d.BundleID] = version

	m.logger.Info("deployment activated", "version_id", version, "bundle_id", d.BundleID)
	return nil
}

// Rollback reverts to version's predecessor: the predecessor is restored
// into the Bridge and marked Active again, and version itself is marked
// RolledBack.
func (m *Manager) Rollback(version rule.VersionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.versions[version]
	if !ok {
		return ErrUnknownVersion
	}
	if !d.IsRollbackEligible() {
		return ErrRollbackIneligible
	}

	prev, ok := m.versions[d.Previous]
	if !ok {
		return ErrRollbackIneligible
	}

	m.bridge.Install(prev.Family, prev.Rules)
	prev.State = StateActive
	d.State = StateRolledBack
	m.activeByBundle[d.BundleID] = prev.VersionID

	m.logger.Warn("deployment rolled back", "version_id", version, "restored_version_id", prev.VersionID)
	return nil
}

// Retire marks a version Retired without touching the Bridge (used for
// versions superseded outside the Activate/Rollback flows, e.g. manual
// cleanup of a long-idle Canary/AB branch).
func (m *Manager) Retire(version rule.VersionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.versions[version]
	if !ok {
		return ErrUnknownVersion
	}
	d.State = StateRetired
	return nil
}

// Get returns a copy of the Deployment record for version.
func (m *Manager) Get(version rule.VersionID) (Deployment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.versions[version]
	if !ok {
		return Deployment{}, false
	}
	return *d, true
}

// ActiveForFamily returns the bundle and version id of the current Active
// deployment targeting family, if any. The enforcement path uses this to
// find which version should route and record health for a given request;
// if more than one bundle happens to target the same family, an arbitrary
// one of them is returned.
func (m *Manager) ActiveForFamily(family rule.FamilyID) (rule.BundleID, rule.VersionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for bundleID, versionID := range m.activeByBundle {
		d, ok := m.versions[versionID]
		if !ok || d.Family != family || d.State != StateActive {
			continue
		}
		return bundleID, versionID, true
	}
	return "", "", false
}

// Route decides which active version a request is served by, for Canary
// and AB strategies: a stable hash of requestKey maps into [0,1) and is
// compared against the strategy's percent/split. BlueGreen/Scheduled
// deployments always route to themselves once Active since there is only
// one Active version per bundle in those strategies.
func (m *Manager) Route(bundleID rule.BundleID, requestKey string) (rule.VersionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.activeByBundle[bundleID]
	if !ok {
		return "", false
	}
	d := m.versions[current]
	if d == nil {
		return "", false
	}

	switch d.Strategy.Kind {
	case StrategyCanary, StrategyAB:
		if d.Previous == "" {
			return current, true
		}
		prev, ok := m.versions[d.Previous]
		if !ok || prev.State != StateActive {
			return current, true
		}
		fraction := d.Strategy.Percent
		if d.Strategy.Kind == StrategyAB {
			fraction = d.Strategy.Split
		}
		if routeFraction(requestKey) < fraction {
			return current, true
		}
		return d.Previous, true
	default:
		return current, true
	}
}

// routeFraction maps a request key to a stable value in [0,1) via xxhash,
// grounded on the teacher's CEL-cache key hashing (policy_service.go).
func routeFraction(requestKey string) float64 {
	h := xxhash.Sum64String(requestKey)
	return float64(h%1_000_000) / 1_000_000
}

// RecordOutcome feeds one request's latency/failure observation into
// version's health window. Called from the hot path after enforcement.
func (m *Manager) RecordOutcome(version rule.VersionID, latency time.Duration, failed bool) {
	m.mu.Lock()
	hw, ok := m.health[version]
	m.mu.Unlock()
	if !ok {
		return
	}
	hw.Record(latency, failed)
}

// Health returns the current HealthMetrics for version.
func (m *Manager) Health(version rule.VersionID) (HealthMetrics, bool) {
	m.mu.Lock()
	hw, ok := m.health[version]
	m.mu.Unlock()
	if !ok {
		return HealthMetrics{}, false
	}
	return hw.Snapshot(), true
}

// CheckAutoRollback evaluates every Active deployment's health window
// against its thresholds and rolls back any that have sustained a breach,
// per spec.md §4.4 ("auto-rollback when thresholds are breached for a
// sustained window"). Intended to be called periodically by a background
// health-sampling loop.
func (m *Manager) CheckAutoRollback(now time.Time) []rule.VersionID {
	m.mu.Lock()
	var candidates []*Deployment
	for _, d := range m.versions {
		if d.State != StateActive || d.Previous == "" {
			continue
		}
		hw := m.health[d.VersionID]
		if hw == nil {
			continue
		}
		if hw.CheckBreach(d.Thresholds, now) {
			candidates = append(candidates, d)
		}
	}
	m.mu.Unlock()

	var rolledBack []rule.VersionID
	for _, d := range candidates {
		if err := m.Rollback(d.VersionID); err == nil {
			rolledBack = append(rolledBack, d.VersionID)
		}
	}
	return rolledBack
}

// History returns every registered Deployment for bundleID, most recently
// created first.
func (m *Manager) History(bundleID rule.BundleID) []Deployment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Deployment
	for _, d := range m.versions {
		if d.BundleID == bundleID {
			out = append(out, *d)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
