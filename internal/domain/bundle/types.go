// Package bundle implements Bundle CRUD: validated, versioned groups of
// rules installed or retired atomically via the Deployment Manager
// (spec.md §4.8).
package bundle

import (
	"fmt"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
)

// Bundle is a named, versioned group of rule descriptors pending or
// already installed.
type Bundle struct {
	ID        rule.BundleID
	Name      string
	Rules     []*rule.Rule
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidationResult reports whether a bundle passed validation, with
// human-readable errors (blocking) and warnings (non-blocking).
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (v *ValidationResult) addError(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	v.Valid = false
}

func (v *ValidationResult) addWarning(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
