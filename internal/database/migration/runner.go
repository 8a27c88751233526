package migration

import (
	"context"
	"fmt"

	"jobfeed/internal/database"
)

var statements = []string{
	// jobs and users are owned by the portal's CRUD services; the core only
	// reads them. The DDL is here so a fresh database can serve tests.
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		company_name TEXT,
		status BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS skills (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		status BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS job_skills (
		id UUID PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		skill_id UUID NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
		importance_weight DOUBLE PRECISION NOT NULL DEFAULT 3,
		required_proficiency INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, skill_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_skills (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		skill_id UUID NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
		proficiency_level INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, skill_id)
	)`,
	`CREATE TABLE IF NOT EXISTS feed_items (
		id UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id UUID NOT NULL,
		score NUMERIC(20,6) NOT NULL,
		weight_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One active feed item per (event_type, subject).
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_feed_item_per_subject
		ON feed_items (event_type, entity_kind, entity_id) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_feed_items_score ON feed_items (score DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_feed_items_subject ON feed_items (entity_kind, entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_feed_items_event_active ON feed_items (event_type, is_active)`,
}

func Run(ctx context.Context, db database.DB) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	for i, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
