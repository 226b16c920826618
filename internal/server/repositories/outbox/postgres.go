package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository keeps outbox events in the account_events table over
// dbx.DBTX (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enqueue(ctx context.Context, kind, subject string) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO account_events (id, kind, subject)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, id, kind, subject); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Pending(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	query := `
		SELECT id, kind, subject, attempts, last_error, created_at, next_attempt_at
		FROM account_events
		WHERE delivered_at IS NULL AND next_attempt_at <= $1
		ORDER BY next_attempt_at, created_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &e.Attempts, &e.LastError, &e.CreatedAt, &e.NextAttemptAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return events, nil
}

func (r *PostgresRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE account_events
		SET delivered_at = $2, attempts = attempts + 1
		WHERE id = $1 AND delivered_at IS NULL
	`
	return r.exec(ctx, query, id, at)
}

func (r *PostgresRepository) RecordFailure(ctx context.Context, id string, reason string, retryAt time.Time) error {
	query := `
		UPDATE account_events
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, id, reason, retryAt)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
