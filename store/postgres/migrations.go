package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Arbiter store (PostgreSQL).
var Migrations = migrate.NewGroup("arbiter")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_policies",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS arbiter_policies (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    effect          TEXT NOT NULL DEFAULT 'allow' CHECK (effect IN ('allow', 'deny')),
    priority        INTEGER NOT NULL DEFAULT 0,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    version         INTEGER NOT NULL DEFAULT 1,
    subject         JSONB,
    resource        JSONB NOT NULL DEFAULT '{}'::jsonb,
    action          JSONB NOT NULL DEFAULT '{}'::jsonb,
    environment     JSONB,
    metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (tenant_id, name)
);

CREATE INDEX IF NOT EXISTS idx_arbiter_policies_tenant ON arbiter_policies (tenant_id);
CREATE INDEX IF NOT EXISTS idx_arbiter_policies_active ON arbiter_policies (tenant_id, is_active, priority DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS arbiter_policies`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_decision_logs",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS arbiter_decision_logs (
    id                TEXT PRIMARY KEY,
    tenant_id         TEXT NOT NULL,
    app_id            TEXT NOT NULL DEFAULT '',
    subject_kind      TEXT NOT NULL,
    subject_id        TEXT NOT NULL,
    action            TEXT NOT NULL,
    resource_type     TEXT NOT NULL,
    resource_id       TEXT NOT NULL,
    decision          TEXT NOT NULL,
    reason            TEXT NOT NULL DEFAULT '',
    policy_id         TEXT NOT NULL DEFAULT '',
    policy_name       TEXT NOT NULL DEFAULT '',
    denied_by_policy  BOOLEAN NOT NULL DEFAULT FALSE,
    default_deny      BOOLEAN NOT NULL DEFAULT FALSE,
    eval_time_ns      BIGINT NOT NULL DEFAULT 0,
    request_ip        TEXT NOT NULL DEFAULT '',
    metadata          JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_arbiter_dlogs_tenant ON arbiter_decision_logs (tenant_id);
CREATE INDEX IF NOT EXISTS idx_arbiter_dlogs_subject ON arbiter_decision_logs (tenant_id, subject_kind, subject_id);
CREATE INDEX IF NOT EXISTS idx_arbiter_dlogs_resource ON arbiter_decision_logs (tenant_id, resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_arbiter_dlogs_policy ON arbiter_decision_logs (tenant_id, policy_id);
CREATE INDEX IF NOT EXISTS idx_arbiter_dlogs_created ON arbiter_decision_logs (created_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS arbiter_decision_logs`)
				return err
			},
		},
	)
}
