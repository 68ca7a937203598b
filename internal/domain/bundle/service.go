package bundle

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// ErrNotFound is returned when an operation targets an unknown bundle.
var ErrNotFound = errors.New("bundle not found")

// ErrValidationFailed names a rejected rule set. Create and Update do not
// return it: they report rejection through the returned ValidationResult
// (Valid false, with its error/warning list) and a nil Bundle.
var ErrValidationFailed = errors.New("bundle validation failed")

// Service implements Bundle CRUD: create/update/deactivate/revoke with
// validation and version bumping. Install onto the Bridge is staged via
// the Deployment Manager, kept as a separate collaborator so bundle
// bookkeeping does not depend on deployment strategy details.
type Service struct {
	mu        sync.Mutex
	validator *Validator
	bundles   map[rule.BundleID]*Bundle
}

// NewService constructs a bundle Service with its own Validator.
func NewService() (*Service, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Service{validator: v, bundles: make(map[rule.BundleID]*Bundle)}, nil
}

// Create validates descriptors and, if they pass, registers a new Bundle
// in memory at version 1 for every contained rule. Returns the validation
// report either way; the bundle is only stored when report.Valid.
func (s *Service) Create(name string, descriptors []*rule.Rule) (*Bundle, ValidationResult) {
	report := s.validator.Validate(descriptors)
	if !report.Valid {
		return nil, report
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, r := range descriptors {
		r.State = rule.StateStaged
		r.Version = 1
		r.CreatedAt = now
		r.UpdatedAt = now
	}

	b := &Bundle{
		ID:        rule.BundleID(uuid.NewString()),
		Name:      name,
		Rules:     descriptors,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.bundles[b.ID] = b
	return b, report
}

// Update validates the replacement rule set, bumps the version of every
// rule that already existed in the bundle (preserving ones that are new),
// and replaces the bundle's rule set. The old version is not mutated in
// place — callers that need the prior rules should read them before
// calling Update (spec.md §3 "every update bumps version and preserves the
// old version until the new one is ACTIVE").
func (s *Service) Update(id rule.BundleID, descriptors []*rule.Rule) (*Bundle, ValidationResult) {
	report := s.validator.Validate(descriptors)
	if !report.Valid {
		return nil, report
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bundles[id]
	if !ok {
		report.Valid = false
		report.Errors = append(report.Errors, ErrNotFound.Error())
		return nil, report
	}
	if existing.Revoked {
		report.Valid = false
		report.Errors = append(report.Errors, "bundle is revoked and cannot be updated")
		return nil, report
	}

	priorVersions := make(map[rule.ID]uint64, len(existing.Rules))
	for _, r := range existing.Rules {
		priorVersions[r.RuleID] = r.Version
	}

	now := time.Now()
	for _, r := range descriptors {
		if prior, ok := priorVersions[r.RuleID]; ok {
			r.Version = prior + 1
		} else {
			r.Version = 1
		}
		r.State = rule.StateStaged
		r.UpdatedAt = now
	}

	existing.Rules = descriptors
	existing.UpdatedAt = now
	return existing, report
}

// Deactivate pauses every rule in the bundle without revoking it; rules
// can be reactivated by a later Update that sets them Active via the
// Deployment Manager.
func (s *Service) Deactivate(id rule.BundleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bundles[id]
	if !ok {
		return ErrNotFound
	}
	for _, r := range b.Rules {
		r.State = rule.StatePaused
	}
	b.UpdatedAt = time.Now()
	return nil
}

// Revoke permanently retires every rule in the bundle. A revoked bundle
// cannot be updated again (spec.md §3 "revoked permanently").
func (s *Service) Revoke(id rule.BundleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bundles[id]
	if !ok {
		return ErrNotFound
	}
	for _, r := range b.Rules {
		r.State = rule.StateRevoked
	}
	b.Revoked = true
	b.UpdatedAt = time.Now()
	return nil
}

// Get returns the bundle with the given id.
func (s *Service) Get(id rule.BundleID) (*Bundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[id]
	return b, ok
}
