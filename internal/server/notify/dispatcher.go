// Package notify delivers queued account events to downstream services.
// Delivery is at least once: receivers must deduplicate on the
// Idempotency-Key header.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/outbox"
)

// ServiceSubject is the token subject the dispatcher authenticates as.
const ServiceSubject = "gatekeeper"

const (
	defaultBatchSize = 50
	defaultTimeout   = 10 * time.Second
	maxBackoff       = time.Hour
)

// TokenIssuer mints the service token sent with each notification.
type TokenIssuer interface {
	Issue(subject string, role models.Role, extra map[string]any) (string, error)
}

// Dispatcher periodically drains the outbox.
type Dispatcher struct {
	endpoint  string
	interval  time.Duration
	batchSize int
	outbox    outbox.Repository
	tokens    TokenIssuer
	client    *http.Client
	logger    logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewDispatcher(endpoint string, interval time.Duration, repo outbox.Repository, tokens TokenIssuer,
	logger logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		endpoint:  strings.TrimRight(endpoint, "/"),
		interval:  interval,
		batchSize: defaultBatchSize,
		outbox:    repo,
		tokens:    tokens,
		client:    &http.Client{Timeout: defaultTimeout},
		logger:    logger.With("module", "notify"),
		metrics:   m,
		now:       time.Now,
	}
}

// Enabled reports whether a cleanup endpoint is configured.
func (d *Dispatcher) Enabled() bool {
	return d.endpoint != "" && d.interval > 0
}

// Run drains the outbox every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	if !d.Enabled() {
		d.logger.Info(ctx, "cleanup notifications disabled")
		return
	}

	d.logger.Info(ctx, "Starting cleanup dispatcher", "endpoint", d.endpoint, "interval", d.interval.String())

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "Stopping cleanup dispatcher...")
			return
		case <-ticker.C:
			if _, err := d.Flush(ctx); err != nil {
				d.logger.Error(ctx, "outbox flush failed", "error", err)
			}
		}
	}
}

// Flush sends one batch of due events and returns how many were delivered.
// A failed event is pushed back by an exponential backoff so it cannot hold
// newer events out of the batch.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	events, err := d.outbox.Pending(ctx, d.now(), d.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, e := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		if err := d.deliver(ctx, e); err != nil {
			retryAt := d.now().Add(d.backoff(e.Attempts))
			d.logger.Warn(ctx, "cleanup notification failed", "event_id", e.ID, "subject", e.Subject,
				"attempt", e.Attempts+1, "retry_at", retryAt, "error", err)
			d.metrics.RecordDelivery(metrics.ResultError)
			if rerr := d.outbox.RecordFailure(ctx, e.ID, err.Error(), retryAt); rerr != nil {
				return delivered, rerr
			}
			continue
		}

		if err := d.outbox.MarkDelivered(ctx, e.ID, d.now()); err != nil {
			return delivered, err
		}
		d.metrics.RecordDelivery(metrics.ResultSuccess)
		delivered++
	}
	return delivered, nil
}

// backoff is the delay before the next attempt of an event that has already
// failed attempts times: the tick interval doubled per failure, capped at
// maxBackoff.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.interval
	if delay < time.Second {
		delay = time.Second
	}
	for i := 0; i < attempts && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func (d *Dispatcher) deliver(ctx context.Context, e models.OutboxEvent) error {
	if e.Kind != models.EventAccountDeactivated {
		return fmt.Errorf("unsupported event kind %q", e.Kind)
	}

	token, err := d.tokens.Issue(ServiceSubject, models.RoleAdmin, map[string]any{"svc": true})
	if err != nil {
		return fmt.Errorf("issue service token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, d.endpoint+"/"+url.PathEscape(e.Subject), nil)
	if err != nil {
		return err
	}
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	req.Header.Set("Idempotency-Key", e.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
