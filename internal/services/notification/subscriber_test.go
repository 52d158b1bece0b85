package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
	"restaurant-orders/internal/models"
)

func TestFormatAlert(t *testing.T) {
	rid := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	oid := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	ts := time.Date(2025, 1, 15, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		alert models.Alert
		want  string
	}{
		{
			name:  "low stock",
			alert: models.Alert{Kind: models.AlertLowStock, RestaurantID: rid, OrderID: &oid, Message: "beef is low", Details: map[string]any{"unit": "kg", "current_stock": "1.5"}, Timestamp: ts},
			want:  "📦 LOW STOCK [2025-01-15 12:30:00] restaurant 11111111-2222-3333-4444-555555555555: beef is low (order aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee) current_stock=1.5 unit=kg",
		},
		{
			name:  "unknown kind",
			alert: models.Alert{Kind: "audit", RestaurantID: rid, Message: "manual edit", Timestamp: ts},
			want:  "📋 AUDIT [2025-01-15 12:30:00] restaurant 11111111-2222-3333-4444-555555555555: manual edit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAlert(&tt.alert))
		})
	}
}

func TestHandleAlert(t *testing.T) {
	var out bytes.Buffer
	s := NewSubscriber(nil, logger.Discard())
	s.out = &out

	body, err := json.Marshal(models.Alert{Kind: models.AlertSideEffectError, RestaurantID: uuid.New(), Message: "realtime fan-out failed"})
	require.NoError(t, err)

	require.NoError(t, s.handleAlert(context.Background(), body))
	assert.Contains(t, out.String(), "DELIVERY FAILURE")
	assert.Contains(t, out.String(), "realtime fan-out failed")

	err = s.handleAlert(context.Background(), []byte("nope"))
	assert.True(t, errors.Is(err, messaging.ErrPermanent))
}
