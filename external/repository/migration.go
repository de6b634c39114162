package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE session_status AS ENUM ('recording', 'ended'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE chunk_status AS ENUM ('saved', 'synced', 'transcribing', 'transcribed', 'error'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE consent_type AS ENUM ('one_time', 'permanent'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		channel_name TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status session_status NOT NULL DEFAULT 'recording',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		transcribed_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_recording ON sessions (guild_id) WHERE status = 'recording'`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		speaker_id TEXT NOT NULL,
		speaker_name TEXT NOT NULL DEFAULT '',
		speaker_display_name TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		duration_ms BIGINT NOT NULL,
		file_size_bytes BIGINT NOT NULL,
		status chunk_status NOT NULL DEFAULT 'saved',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_status ON chunks (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS transcriptions (
		chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		processed_at_ms BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS consent_grants (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		type consent_type NOT NULL,
		guild_id TEXT,
		channel_id TEXT,
		session_id UUID,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_consent_grants_user ON consent_grants (user_id) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_consent_grants_session ON consent_grants (session_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS relay_commands (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		command TEXT NOT NULL,
		result JSONB,
		claimed_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relay_commands_pending ON relay_commands (created_at) WHERE claimed_at IS NULL`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
