// Package sqlstore provides a durable outbound.AnchorRepository backed by
// SQLite (modernc.org/sqlite, a CGo-free driver). Rules are stored as JSON
// documents with rule_id/family_id/version broken out into indexed columns
// so ListFamily and FetchRule don't require scanning the whole table.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vectorbound/boundaryplane/internal/domain/rule"
	"github.com/vectorbound/boundaryplane/internal/port/outbound"
)

const schema = `
CREATE TABLE IF NOT EXISTS anchor_rules (
	rule_id   TEXT PRIMARY KEY,
	family_id TEXT NOT NULL,
	version   INTEGER NOT NULL,
	document  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anchor_rules_family ON anchor_rules(family_id);
`

// AnchorRepository implements outbound.AnchorRepository against a SQLite
// database file (or in-process DSN such as ":memory:").
type AnchorRepository struct {
	db *sql.DB
}

// Open opens (and, if necessary, creates) the SQLite database at dsn and
// ensures the anchor_rules table exists.
func Open(dsn string) (*AnchorRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite anchor repository: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY on concurrent writes;
	// reads still run through the same pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create anchor_rules schema: %w", err)
	}

	return &AnchorRepository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *AnchorRepository) Close() error {
	return r.db.Close()
}

// Put inserts or replaces a rule's stored definition, keyed by rule id.
func (r *AnchorRepository) Put(ctx context.Context, rl *rule.Rule) error {
	doc, err := json.Marshal(rl)
	if err != nil {
		return fmt.Errorf("marshal rule %s: %w", rl.RuleID, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO anchor_rules (rule_id, family_id, version, document) VALUES (?, ?, ?, ?)
		 ON CONFLICT(rule_id) DO UPDATE SET family_id = excluded.family_id, version = excluded.version, document = excluded.document`,
		string(rl.RuleID), string(rl.FamilyID), int64(rl.Version), string(doc))
	if err != nil {
		return fmt.Errorf("put rule %s: %w", rl.RuleID, err)
	}
	return nil
}

// Delete removes a rule's stored definition.
func (r *AnchorRepository) Delete(ctx context.Context, id rule.ID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM anchor_rules WHERE rule_id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

// ListFamily returns every stored rule for family.
func (r *AnchorRepository) ListFamily(ctx context.Context, family rule.FamilyID) ([]*rule.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document FROM anchor_rules WHERE family_id = ?`, string(family))
	if err != nil {
		return nil, fmt.Errorf("list family %s: %w", family, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*rule.Rule
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		var rl rule.Rule
		if err := json.Unmarshal([]byte(doc), &rl); err != nil {
			return nil, fmt.Errorf("unmarshal rule document: %w", err)
		}
		out = append(out, &rl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list family %s: %w", family, err)
	}
	return out, nil
}

// FetchRule returns the stored definition for id, or (nil, false) if
// unknown.
func (r *AnchorRepository) FetchRule(ctx context.Context, id rule.ID) (*rule.Rule, bool, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM anchor_rules WHERE rule_id = ?`, string(id)).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch rule %s: %w", id, err)
	}

	var rl rule.Rule
	if err := json.Unmarshal([]byte(doc), &rl); err != nil {
		return nil, false, fmt.Errorf("unmarshal rule document: %w", err)
	}
	return &rl, true, nil
}

// Compile-time interface verification.
var _ outbound.AnchorRepository = (*AnchorRepository)(nil)
