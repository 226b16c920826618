package models

import "time"

// EventAccountDeactivated asks downstream services to drop data owned by the
// account identified by the event subject.
const EventAccountDeactivated = "account.deactivated"

// OutboxEvent is a pending cross-service notification. Receivers must treat
// ID as an idempotency key: the dispatcher delivers at least once.
type OutboxEvent struct {
	ID        string
	Kind      string
	Subject   string
	Attempts  int
	LastError string
	CreatedAt time.Time
	// NextAttemptAt is the earliest time the dispatcher may send the event.
	NextAttemptAt time.Time
	DeliveredAt   *time.Time
}
