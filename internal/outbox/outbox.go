// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to the event bus at least once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"restaurant-orders/internal/database"
)

type Message struct {
	ID          int64
	EventID     uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	RoutingKey  string
	Payload     json.RawMessage
	Attempts    int
	CreatedAt   time.Time
}

// Execer is satisfied by pgx.Tx and *pgxpool.Pool
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert writes one event row. An event of the same type for the same aggregate
// is ignored, so inserted reports false on a repeat.
func Insert(ctx context.Context, db Execer, eventID uuid.UUID, eventType string, aggregateID uuid.UUID, routingKey string, payload any) (inserted bool, err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	tag, err := db.Exec(ctx, database.InsertOutboxSQL, eventID, eventType, aggregateID, routingKey, data)
	if err != nil {
		return false, fmt.Errorf("failed to insert outbox row: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SendFunc delivers one message
type SendFunc func(ctx context.Context, m Message) error

// Store hands pending rows to a sender
type Store interface {
	Dispatch(ctx context.Context, limit int, send SendFunc) (sent, failed int, err error)
}

// PostgresStore locks a batch with FOR UPDATE SKIP LOCKED so several relays can run side by side
type PostgresStore struct {
	db database.TxBeginner
}

func NewPostgresStore(db database.TxBeginner) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Dispatch(ctx context.Context, limit int, send SendFunc) (sent, failed int, err error) {
	err = database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		batch, err := fetchPending(ctx, tx, limit)
		if err != nil {
			return err
		}

		for _, m := range batch {
			if sendErr := send(ctx, m); sendErr != nil {
				failed++
				if _, err := tx.Exec(ctx, database.MarkOutboxFailedSQL, m.ID, sendErr.Error()); err != nil {
					return fmt.Errorf("failed to record outbox failure: %w", err)
				}
				continue
			}
			sent++
			if _, err := tx.Exec(ctx, database.MarkOutboxSentSQL, m.ID); err != nil {
				return fmt.Errorf("failed to mark outbox row sent: %w", err)
			}
		}
		return nil
	})
	return sent, failed, err
}

func fetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	rows, err := tx.Query(ctx, database.FetchPendingOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending outbox rows: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.EventID, &m.EventType, &m.AggregateID, &m.RoutingKey, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
