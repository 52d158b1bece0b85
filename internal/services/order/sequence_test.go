package order

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
)

func TestRedisSequencer_SetsExpiryOnFirstIssue(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rid := uuid.MustParse("8d3c7a52-0d7e-4c8e-9d0e-2f0c3a2b1a11")
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	key := "order_seq:8d3c7a52-0d7e-4c8e-9d0e-2f0c3a2b1a11:250115"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, 48*time.Hour).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)

	seq := NewRedisSequencer(client, logger.Discard())
	first, err := seq.Next(context.Background(), rid, day)
	require.NoError(t, err)
	second, err := seq.Next(context.Background(), rid, day)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_LogsFailedExpiry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rid := uuid.New()
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	key := sequenceKey(rid, day)
	var buf bytes.Buffer

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, 48*time.Hour).SetErr(errors.New("READONLY replica"))

	seq, err := NewRedisSequencer(client, logger.NewWithWriter("order-service", &buf, "info")).Next(context.Background(), rid, day)
	require.NoError(t, err)

	assert.Equal(t, int64(1), seq)
	assert.Contains(t, buf.String(), "sequence_expire_failed")
	assert.Contains(t, buf.String(), key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequencer_PropagatesErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rid := uuid.New()
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectIncr(sequenceKey(rid, day)).SetErr(errors.New("connection reset"))

	_, err := NewRedisSequencer(client, logger.Discard()).Next(context.Background(), rid, day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

type fakeRow struct {
	value int64
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.value
	return nil
}

type recordingQuerier struct {
	sql  string
	args []any
	row  fakeRow
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return q.row
}

func TestPostgresSequencer_UsesBusinessDate(t *testing.T) {
	q := &recordingQuerier{row: fakeRow{value: 42}}
	rid := uuid.New()
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	seq, err := NewPostgresSequencer(q).Next(context.Background(), rid, day)
	require.NoError(t, err)

	assert.Equal(t, int64(42), seq)
	assert.Equal(t, database.NextOrderSequenceSQL, q.sql)
	assert.Equal(t, []any{rid, "2025-01-15"}, q.args)
}

func TestNumberGenerator_Format(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		loc     *time.Location
		seq     int64
		want    string
		wantErr error
	}{
		{name: "first of the day", now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), loc: time.UTC, seq: 1, want: "2501150001"},
		{name: "last of the day", now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), loc: time.UTC, seq: 9999, want: "2501159999"},
		{name: "exhausted", now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), loc: time.UTC, seq: 10000, wantErr: models.ErrSequenceExhausted},
		{
			name: "business day follows the zone",
			now:  time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC),
			loc:  time.FixedZone("ICT", 7*60*60),
			seq:  3,
			want: "2501160003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubSequencer{value: tt.seq}
			g := NewNumberGenerator(stub, tt.loc)
			g.now = func() time.Time { return tt.now }

			got, err := g.Next(context.Background(), uuid.New())
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.loc, stub.day.Location())
		})
	}
}

type stubSequencer struct {
	value int64
	day   time.Time
}

func (s *stubSequencer) Next(_ context.Context, _ uuid.UUID, day time.Time) (int64, error) {
	s.day = day
	return s.value, nil
}
