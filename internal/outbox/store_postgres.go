package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"gridreg/internal/platform/postgres"
	txcontext "gridreg/pkg/platform/tx"
)

// PostgresStore writes events to the outbox table in the caller's transaction
// and hands unpublished rows to the worker.
type PostgresStore struct {
	db *sql.DB
	tx *postgres.TxRunner
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		tx: postgres.NewTxRunner(db, postgres.WithLockTimeout(0)),
	}
}

// Append inserts evt using the transaction in ctx when there is one.
func (s *PostgresStore) Append(ctx context.Context, evt Event) error {
	payload := evt.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, []byte(payload), evt.CreatedAt)
	if err != nil {
		return postgres.Classifyf(err, "insert outbox entry %s", evt.EventType)
	}
	return nil
}

// PublishPending locks up to limit unpublished rows, skipping rows another
// worker holds, and marks them published only if publish succeeds.
func (s *PostgresStore) PublishPending(ctx context.Context, limit int, publish func(context.Context, []Event) error) (int, error) {
	var published int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := txcontext.Executor(ctx, s.db)
		rows, err := q.QueryContext(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
			FROM outbox
			WHERE published_at IS NULL
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return postgres.Classifyf(err, "select outbox entries")
		}
		defer rows.Close()

		var (
			batch []Event
			ids   []string
		)
		for rows.Next() {
			var (
				e       Event
				payload []byte
			)
			if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
				return postgres.Classifyf(err, "scan outbox entry")
			}
			e.Payload = json.RawMessage(payload)
			batch = append(batch, e)
			ids = append(ids, e.ID.String())
		}
		if err := rows.Err(); err != nil {
			return postgres.Classifyf(err, "iterate outbox entries")
		}
		if len(batch) == 0 {
			return nil
		}

		if err := publish(ctx, batch); err != nil {
			return fmt.Errorf("publish outbox batch: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
			return postgres.Classifyf(err, "mark outbox entries published")
		}
		published = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// Pending counts unpublished rows.
func (s *PostgresStore) Pending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, postgres.Classifyf(err, "count pending outbox entries")
	}
	return n, nil
}
