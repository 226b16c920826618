// Package outbox declares the transactional outbox used to notify other
// services about account lifecycle changes.
package outbox

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository stores cross-service events next to the account rows they
// describe, so both commit or roll back together.
type Repository interface {
	// Enqueue records a new pending event and returns its id.
	Enqueue(ctx context.Context, kind, subject string) (string, error)

	// Pending returns up to limit undelivered events that are due at now,
	// earliest due first. Events backing off after a failure are skipped.
	Pending(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error)

	// MarkDelivered stamps the event as delivered at. Unknown ids are ignored.
	MarkDelivered(ctx context.Context, id string, at time.Time) error

	// RecordFailure bumps the attempt counter, stores the last error and
	// defers the event until retryAt.
	RecordFailure(ctx context.Context, id string, reason string, retryAt time.Time) error
}
