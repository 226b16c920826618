package notify

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/outbox"
)

// setupEventsDB creates an in-memory account_events table shaped like the
// Postgres one.
func setupEventsDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared&_time_format=sqlite")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE account_events (
		id              TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		subject         TEXT NOT NULL,
		attempts        INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		next_attempt_at TIMESTAMP NOT NULL DEFAULT '1970-01-01 00:00:00+00:00',
		delivered_at    TIMESTAMP
	)`)
	require.NoError(t, err)
	return db
}

type eventState struct {
	attempts  int
	delivered bool
}

func stateOf(t *testing.T, db *sql.DB, subject string) eventState {
	t.Helper()
	var s eventState
	require.NoError(t, db.QueryRow(
		`SELECT attempts, delivered_at IS NOT NULL FROM account_events WHERE subject = $1`, subject,
	).Scan(&s.attempts, &s.delivered))
	return s
}

func TestFlush_FailingEventsDoNotStarveNewerOnes(t *testing.T) {
	const failing = 3
	ctx := context.Background()
	db := setupEventsDB(t)
	repo := outbox.NewPostgresRepository(db)

	for i := 0; i < failing; i++ {
		_, err := repo.Enqueue(ctx, models.EventAccountDeactivated, fmt.Sprintf("gone%d@x.com", i))
		require.NoError(t, err)
	}
	_, err := repo.Enqueue(ctx, models.EventAccountDeactivated, "ann@x.com")
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE account_events SET created_at = '2999-01-01 00:00:00' WHERE subject = 'ann@x.com'`)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 30*time.Second, repo, newTokens(t), logging.Nop{}, nil)
	d.batchSize = failing
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	n, err := d.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	assert.Equal(t, eventState{attempts: 0}, stateOf(t, db, "ann@x.com"), "batch was full of older events")

	for i := 0; i < 5; i++ {
		_, err = d.Flush(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, eventState{attempts: 1, delivered: true}, stateOf(t, db, "ann@x.com"))
	for i := 0; i < failing; i++ {
		assert.Equal(t, eventState{attempts: 1}, stateOf(t, db, fmt.Sprintf("gone%d@x.com", i)), "failed event retried before its backoff")
	}

	clock = clock.Add(30 * time.Second)
	_, err = d.Flush(ctx)
	require.NoError(t, err)
	for i := 0; i < failing; i++ {
		assert.Equal(t, eventState{attempts: 2}, stateOf(t, db, fmt.Sprintf("gone%d@x.com", i)))
	}
}
