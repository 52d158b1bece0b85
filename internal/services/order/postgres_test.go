package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/database/dbtest"
	"restaurant-orders/internal/models"
)

func sampleOrder() *models.Order {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	o := &models.Order{
		ID:            id,
		RestaurantID:  uuid.New(),
		OrderNumber:   "2501150001",
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentUnpaid,
		PaymentMethod: models.PaymentCash,
		Subtotal:      decimal.NewFromInt(130000),
		TotalAmount:   decimal.NewFromInt(130000),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, name := range []string{"Pho Bo", "Tra Da"} {
		o.Items = append(o.Items, models.OrderItem{
			ID: uuid.New(), OrderID: id, Position: i, ItemName: name,
			UnitPrice: decimal.NewFromInt(50000), Quantity: 1, Subtotal: decimal.NewFromInt(50000),
			Status: models.ItemPending,
		})
	}
	return o
}

func TestPostgresRepository_CreateWritesAggregateInOneTx(t *testing.T) {
	db := &dbtest.DB{}
	repo := NewPostgresRepository(db)

	require.NoError(t, repo.Create(context.Background(), sampleOrder()))

	assert.Equal(t, []string{
		database.InsertOrderSQL,
		database.InsertOrderItemSQL,
		database.InsertOrderItemSQL,
		database.InsertOrderStatusLogSQL,
	}, db.Statements())
	assert.Equal(t, 1, db.Commits)
	assert.Equal(t, 0, db.Rollbacks)
}

func TestPostgresRepository_CreateNumberCollision(t *testing.T) {
	db := &dbtest.DB{ExecFunc: func(sql string, _ []any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", ConstraintName: orderNumberConstraint}
	}}
	repo := NewPostgresRepository(db)

	err := repo.Create(context.Background(), sampleOrder())

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict), err.Error())
	assert.Equal(t, 0, db.Commits)
	assert.Equal(t, 1, db.Rollbacks)
	assert.Empty(t, db.CallsTo(database.InsertOrderItemSQL))
}

func TestPostgresRepository_CreateItemFailureRollsBack(t *testing.T) {
	tests := []struct {
		name         string
		batchErr     error
		wantConflict bool
	}{
		{name: "other unique constraint", batchErr: &pgconn.PgError{Code: "23505", ConstraintName: "order_items_pkey"}},
		{name: "foreign key", batchErr: &pgconn.PgError{Code: "23503"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &dbtest.DB{BatchErr: tt.batchErr}
			err := NewPostgresRepository(db).Create(context.Background(), sampleOrder())

			require.Error(t, err)
			assert.Equal(t, tt.wantConflict, errors.Is(err, models.ErrConflict))
			assert.Equal(t, 0, db.Commits)
			assert.Equal(t, 1, db.Rollbacks)
		})
	}
}

func TestPostgresRepository_UpdateStatusStaleVersion(t *testing.T) {
	db := &dbtest.DB{ExecFunc: func(sql string, _ []any) (pgconn.CommandTag, error) {
		if sql == database.UpdateOrderStatusSQL {
			return dbtest.Tag("UPDATE", 0), nil
		}
		return dbtest.Tag("INSERT", 1), nil
	}}
	o := sampleOrder()
	o.Status = models.StatusCompleted
	ev := models.NewCompletionEvent(o)

	err := NewPostgresRepository(db).UpdateStatus(context.Background(), o, StatusChange{ExpectedVersion: 1, Completion: &ev})

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, 1, o.Version)
	assert.Equal(t, 1, db.Rollbacks)
	assert.Empty(t, db.CallsTo(database.InsertOutboxSQL))
}

func TestPostgresRepository_UpdateStatusWritesOutboxWithChange(t *testing.T) {
	db := &dbtest.DB{}
	o := sampleOrder()
	o.Status = models.StatusCompleted
	ev := models.NewCompletionEvent(o)

	err := NewPostgresRepository(db).UpdateStatus(context.Background(), o, StatusChange{ExpectedVersion: 1, Completion: &ev})

	require.NoError(t, err)
	assert.Equal(t, []string{
		database.UpdateOrderStatusSQL,
		database.InsertOrderStatusLogSQL,
		database.InsertOutboxSQL,
	}, db.Statements())
	assert.Equal(t, 2, o.Version)
	assert.Equal(t, 1, db.Commits)
}
