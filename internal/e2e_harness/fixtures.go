package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedRegistry creates the metadata tables and inserts a small catalog: a
// "contact" template with a string field and an integer field, owned by
// tenant "acme" project "crm".
func SeedRegistry(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS template_registry (
  id BIGSERIAL PRIMARY KEY,
  tenant_id VARCHAR(64) NOT NULL,
  project_id VARCHAR(64) NOT NULL,
  name VARCHAR(64) NOT NULL,
  label VARCHAR(255) NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  settings JSONB NOT NULL DEFAULT '{}',
  status VARCHAR(16) NOT NULL DEFAULT 'active',
  created BIGINT NOT NULL,
  updated BIGINT NOT NULL,
  UNIQUE (tenant_id, project_id, name)
);`,
		`CREATE TABLE IF NOT EXISTS template_fields (
  id BIGSERIAL PRIMARY KEY,
  template_id BIGINT NOT NULL,
  name VARCHAR(64) NOT NULL,
  label VARCHAR(255) NOT NULL DEFAULT '',
  type VARCHAR(32) NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  required BOOLEAN NOT NULL DEFAULT FALSE,
  weight INTEGER NOT NULL DEFAULT 0,
  settings JSONB NOT NULL DEFAULT '{}',
  created BIGINT NOT NULL,
  updated BIGINT NOT NULL,
  UNIQUE (template_id, name)
);`,
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	now := time.Now().Unix()
	var templateID int64
	err := db.QueryRowContext(ctx, `
INSERT INTO template_registry (tenant_id, project_id, name, label, settings, created, updated)
VALUES ($1,$2,$3,$4,$5,$6,$6) RETURNING id
`, "acme", "crm", "contact", "Contact", `{"has_title": true}`, now).Scan(&templateID)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	fields := []struct {
		name     string
		typ      string
		required bool
		weight   int
		settings string
	}{
		{"email", "email", true, 0, `{}`},
		{"age", "integer", false, 1, `{"min": 0, "max": 150}`},
	}
	for _, f := range fields {
		if _, err := db.ExecContext(ctx, `
INSERT INTO template_fields (template_id, name, type, required, weight, settings, created, updated)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
`, templateID, f.name, f.typ, f.required, f.weight, f.settings, now); err != nil {
			return fmt.Errorf("insert field %s: %w", f.name, err)
		}
	}
	return nil
}
