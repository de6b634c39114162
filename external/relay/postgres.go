package relay

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	relaypkg "github.com/pinebranchlab/soundbooth/internal/relay"
)

type PostgresMailbox struct {
	pool *pgxpool.Pool
}

func NewPostgresMailbox(pool *pgxpool.Pool) relaypkg.Mailbox {
	return &PostgresMailbox{pool: pool}
}

func (m *PostgresMailbox) Poll(ctx context.Context) (*relaypkg.Command, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx,
		`SELECT id, command FROM relay_commands
		 WHERE claimed_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`)
	var cmd relaypkg.Command
	if err := row.Scan(&cmd.ID, &cmd.Text); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE relay_commands SET claimed_at = NOW() WHERE id = $1`, cmd.ID); err != nil {
		return nil, err
	}
	// A newly claimed command supersedes any stale result still sitting in
	// older rows.
	if _, err := tx.Exec(ctx,
		`UPDATE relay_commands SET result = NULL WHERE id <> $1 AND completed_at IS NOT NULL`, cmd.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (m *PostgresMailbox) PublishResult(ctx context.Context, commandID string, payload []byte) error {
	tag, err := m.pool.Exec(ctx,
		`UPDATE relay_commands SET result = $2, completed_at = NOW() WHERE id = $1`,
		commandID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relay command %s not found", commandID)
	}
	return nil
}
