package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
)

// Sequencer issues the next per-restaurant-day sequence value atomically
type Sequencer interface {
	Next(ctx context.Context, restaurantID uuid.UUID, day time.Time) (int64, error)
}

// RowQuerier is satisfied by *pgxpool.Pool and pgx.Tx
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSequencer upserts a counter row; the row lock serializes concurrent issuers
type PostgresSequencer struct {
	db RowQuerier
}

func NewPostgresSequencer(db RowQuerier) *PostgresSequencer {
	return &PostgresSequencer{db: db}
}

func (s *PostgresSequencer) Next(ctx context.Context, restaurantID uuid.UUID, day time.Time) (int64, error) {
	var seq int64
	businessDate := day.Format(time.DateOnly)
	if err := s.db.QueryRow(ctx, database.NextOrderSequenceSQL, restaurantID, businessDate).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to issue order sequence: %w", err)
	}
	return seq, nil
}

const redisSequenceTTL = 48 * time.Hour

// RedisSequencer uses INCR on a day scoped key
type RedisSequencer struct {
	client redis.UniversalClient
	logger *logger.Logger
}

func NewRedisSequencer(client redis.UniversalClient, log *logger.Logger) *RedisSequencer {
	return &RedisSequencer{client: client, logger: log}
}

func sequenceKey(restaurantID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("order_seq:%s:%s", restaurantID, day.Format("060102"))
}

func (s *RedisSequencer) Next(ctx context.Context, restaurantID uuid.UUID, day time.Time) (int64, error) {
	key := sequenceKey(restaurantID, day)
	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to issue order sequence: %w", err)
	}
	if seq == 1 {
		if err := s.client.Expire(ctx, key, redisSequenceTTL).Err(); err != nil {
			s.logger.Error("sequence_expire_failed", "Sequence key has no expiry", "", err, map[string]interface{}{
				"key": key,
			})
		}
	}
	return seq, nil
}

// NumberGenerator formats sequences as YYMMDD#### in the business time zone
type NumberGenerator struct {
	seq Sequencer
	loc *time.Location
	now func() time.Time
}

func NewNumberGenerator(seq Sequencer, loc *time.Location) *NumberGenerator {
	if loc == nil {
		loc = time.Local
	}
	return &NumberGenerator{seq: seq, loc: loc, now: time.Now}
}

func (g *NumberGenerator) Next(ctx context.Context, restaurantID uuid.UUID) (string, error) {
	day := models.BusinessDay(g.now(), g.loc)
	seq, err := g.seq.Next(ctx, restaurantID, day)
	if err != nil {
		return "", err
	}
	return models.FormatOrderNumber(day, seq)
}
