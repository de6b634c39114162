package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pinebranchlab/soundbooth/internal/repository"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (guild_id, channel_id, channel_name, started_at, status)
		 VALUES ($1, $2, $3, $4, 'recording')
		 RETURNING id, guild_id, channel_id, channel_name, started_at, ended_at, status, chunk_count, transcribed_count`,
		input.GuildID, input.ChannelID, input.ChannelName, input.StartedAt)
	var s repository.Session
	err := row.Scan(&s.ID, &s.GuildID, &s.ChannelID, &s.ChannelName, &s.StartedAt, &s.EndedAt, &s.Status, &s.ChunkCount, &s.TranscribedCount)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) CompleteSession(ctx context.Context, input repository.CompleteSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = 'ended', ended_at = $2, chunk_count = $3, transcribed_count = $4, updated_at = NOW()
		 WHERE id = $1`,
		input.SessionID, input.EndedAt, input.ChunkCount, input.TranscribedCount)
	return err
}

func (r *PostgresRepository) IncrementSessionChunkCount(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET chunk_count = chunk_count + 1, updated_at = NOW() WHERE id = $1`,
		sessionID)
	return err
}

func (r *PostgresRepository) InsertChunk(ctx context.Context, input repository.InsertChunkInput) (*repository.Chunk, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO chunks (session_id, speaker_id, speaker_name, speaker_display_name, filename, duration_ms, file_size_bytes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'saved')
		 RETURNING id, session_id, speaker_id, speaker_name, speaker_display_name, filename, duration_ms, file_size_bytes, status, created_at`,
		input.SessionID, input.SpeakerID, input.SpeakerName, input.SpeakerDisplayName, input.Filename, input.DurationMs, input.FileSizeBytes)
	var c repository.Chunk
	err := row.Scan(&c.ID, &c.SessionID, &c.SpeakerID, &c.SpeakerName, &c.SpeakerDisplayName, &c.Filename, &c.DurationMs, &c.FileSizeBytes, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) CountChunksBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE session_id = $1`, sessionID).Scan(&count)
	return count, err
}

func (r *PostgresRepository) CountTranscribedBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE session_id = $1 AND status = 'transcribed'`, sessionID).Scan(&count)
	return count, err
}

func (r *PostgresRepository) ListChunksByStatus(ctx context.Context, status repository.ChunkStatus, limit int) ([]repository.Chunk, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, speaker_id, speaker_name, speaker_display_name, filename, duration_ms, file_size_bytes, status, created_at
		 FROM chunks WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Chunk
	for rows.Next() {
		var c repository.Chunk
		if err := rows.Scan(&c.ID, &c.SessionID, &c.SpeakerID, &c.SpeakerName, &c.SpeakerDisplayName, &c.Filename, &c.DurationMs, &c.FileSizeBytes, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) UpdateChunkStatus(ctx context.Context, chunkID string, status repository.ChunkStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE chunks SET status = $2 WHERE id = $1`, chunkID, status)
	return err
}

func (r *PostgresRepository) InsertTranscription(ctx context.Context, input repository.InsertTranscriptionInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcriptions (chunk_id, text, confidence, model, processed_at_ms)
		 VALUES ($1, $2, $3, $4, $5)`,
		input.ChunkID, input.Text, input.Confidence, input.Model, input.ProcessedAtMs)
	return err
}

func (r *PostgresRepository) GetTranscriptionByChunkID(ctx context.Context, chunkID string) (*repository.Transcription, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT chunk_id, text, confidence, model, processed_at_ms
		 FROM transcriptions WHERE chunk_id = $1`, chunkID)
	var t repository.Transcription
	err := row.Scan(&t.ChunkID, &t.Text, &t.Confidence, &t.Model, &t.ProcessedAtMs)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) InsertConsentGrant(ctx context.Context, input repository.InsertConsentGrantInput) (*repository.ConsentGrant, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO consent_grants (user_id, user_name, type, guild_id, channel_id, session_id)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, '')::uuid)
		 RETURNING id, user_id, user_name, type, guild_id, channel_id, session_id, is_active, created_at, revoked_at`,
		input.UserID, input.UserName, input.Type, input.GuildID, input.ChannelID, input.SessionID)
	var g repository.ConsentGrant
	err := row.Scan(&g.ID, &g.UserID, &g.UserName, &g.Type, &g.GuildID, &g.ChannelID, &g.SessionID, &g.IsActive, &g.CreatedAt, &g.RevokedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *PostgresRepository) HasActivePermanentConsent(ctx context.Context, userID, guildID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM consent_grants
		   WHERE user_id = $1 AND guild_id = $2 AND type = 'permanent' AND is_active
		 )`, userID, guildID).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) RevokeConsentsForUser(ctx context.Context, userID string, revokedAt time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE consent_grants SET is_active = FALSE, revoked_at = $2
		 WHERE user_id = $1 AND is_active`,
		userID, revokedAt)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) RevokeOneTimeConsentsForSession(ctx context.Context, sessionID string, revokedAt time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE consent_grants SET is_active = FALSE, revoked_at = $2
		 WHERE session_id = $1 AND type = 'one_time' AND is_active`,
		sessionID, revokedAt)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
