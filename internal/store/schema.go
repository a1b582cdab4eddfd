package store

import (
	"context"
	"fmt"
)

// schema is applied at startup. Statements are idempotent so a restart
// against an existing database is a no-op.
const schema = `
CREATE TABLE IF NOT EXISTS sources (
	name                  TEXT PRIMARY KEY,
	kind                  TEXT NOT NULL,
	enabled               BOOLEAN NOT NULL DEFAULT TRUE,
	profile               TEXT NOT NULL DEFAULT '',
	consecutive_empty     INT NOT NULL DEFAULT 0,
	consecutive_failures  INT NOT NULL DEFAULT 0,
	last_run_at           TIMESTAMPTZ,
	last_outcome          TEXT NOT NULL DEFAULT '',
	next_delay_ms         BIGINT NOT NULL DEFAULT 0,
	disabled_reason       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS jobs (
	id             UUID PRIMARY KEY,
	source         TEXT NOT NULL,
	external_id    TEXT NOT NULL,
	url            TEXT NOT NULL,
	title          TEXT NOT NULL,
	company        TEXT NOT NULL,
	location       TEXT NOT NULL DEFAULT '',
	salary_raw     TEXT NOT NULL DEFAULT '',
	contract_type  TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	profile        TEXT NOT NULL DEFAULT '',
	verdict_reason TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	discovered_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (source, external_id)
);
CREATE INDEX IF NOT EXISTS ix_jobs_status ON jobs (status);
CREATE INDEX IF NOT EXISTS ix_jobs_source ON jobs (source);

CREATE TABLE IF NOT EXISTS applications (
	id                  UUID PRIMARY KEY,
	job_id              UUID NOT NULL UNIQUE REFERENCES jobs (id),
	profile             TEXT NOT NULL,
	company             TEXT NOT NULL,
	status              TEXT NOT NULL,
	document            JSONB,
	quality_score       DOUBLE PRECISION,
	authorized_by_human BOOLEAN NOT NULL DEFAULT FALSE,
	authorized_at       TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_applications_status ON applications (status);
CREATE INDEX IF NOT EXISTS ix_applications_company ON applications (company);

CREATE TABLE IF NOT EXISTS application_events (
	id             BIGSERIAL PRIMARY KEY,
	application_id UUID NOT NULL REFERENCES applications (id) ON DELETE CASCADE,
	old_status     TEXT,
	new_status     TEXT NOT NULL,
	triggered_by   TEXT NOT NULL,
	note           TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ix_events_application_id ON application_events (application_id);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
