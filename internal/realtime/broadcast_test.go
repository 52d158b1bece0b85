package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/metrics"
	"restaurant-orders/internal/models"
)

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingAlerts) PublishAlert(_ context.Context, a models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func testOrder() *models.Order {
	o := &models.Order{
		ID:            uuid.New(),
		RestaurantID:  uuid.New(),
		OrderNumber:   "2501150001",
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentUnpaid,
		Subtotal:      decimal.NewFromInt(50000),
		TotalAmount:   decimal.NewFromInt(50000),
	}
	o.Items = []models.OrderItem{{ID: uuid.New(), OrderID: o.ID, ItemName: "Pho", Quantity: 1, Status: models.ItemPending}}
	return o
}

func TestBroadcaster_OrderCreatedAudiences(t *testing.T) {
	pub := newRecordingPublisher()
	b := NewBroadcaster(pub, nil, metrics.NewNop(), logger.Discard())
	o := testOrder()

	b.OrderCreated(context.Background(), o, "req-1")

	assert.Equal(t, 1, pub.count(KitchenTopic(o.RestaurantID)))
	assert.Equal(t, 1, pub.count(DashboardTopic(o.RestaurantID)))
	assert.Equal(t, 0, pub.count(OrderTopic(o.ID)))

	var msg models.RealtimeMessage
	require.NoError(t, json.Unmarshal(pub.sent[KitchenTopic(o.RestaurantID)][0], &msg))
	assert.Equal(t, models.EventOrderCreated, msg.Event)
	require.NotNil(t, msg.Order)
	assert.Equal(t, "2501150001", msg.Order.OrderNumber)
	assert.Equal(t, "50000.00", msg.Order.TotalAmount)
}

func TestBroadcaster_StatusChangeReachesAllAudiences(t *testing.T) {
	pub := newRecordingPublisher()
	b := NewBroadcaster(pub, nil, metrics.NewNop(), logger.Discard())
	o := testOrder()
	o.Status = models.StatusConfirmed

	b.OrderStatusChanged(context.Background(), o, models.StatusPending, "")
	b.ItemStatusChanged(context.Background(), o, &o.Items[0], models.ItemPending, "")

	for _, topic := range []string{OrderTopic(o.ID), KitchenTopic(o.RestaurantID), DashboardTopic(o.RestaurantID)} {
		assert.Equal(t, 2, pub.count(topic), topic)
	}

	var msg models.RealtimeMessage
	require.NoError(t, json.Unmarshal(pub.sent[OrderTopic(o.ID)][0], &msg))
	assert.Equal(t, "PENDING", msg.OldStatus)
	assert.Equal(t, "CONFIRMED", msg.NewStatus)
}

func TestBroadcaster_FailureIsAlertedNotReturned(t *testing.T) {
	o := testOrder()
	pub := newRecordingPublisher(KitchenTopic(o.RestaurantID))
	alerts := &recordingAlerts{}
	m := metrics.NewNop()
	b := NewBroadcaster(pub, alerts, m, logger.Discard())

	b.OrderDeleted(context.Background(), o, "req-2")

	assert.Equal(t, 1, pub.count(OrderTopic(o.ID)))
	assert.Equal(t, 1, pub.count(DashboardTopic(o.RestaurantID)))
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, models.AlertSideEffectError, alerts.alerts[0].Kind)
	assert.Equal(t, o.ID, *alerts.alerts[0].OrderID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RealtimeFailures.WithLabelValues(models.EventOrderDeleted)))
}

func TestBroadcaster_SurvivesCancelledRequest(t *testing.T) {
	pub := newRecordingPublisher()
	b := NewBroadcaster(pub, nil, metrics.NewNop(), logger.Discard())
	b.now = func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }
	o := testOrder()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.OrderCreated(ctx, o, "")

	assert.Equal(t, 1, pub.count(KitchenTopic(o.RestaurantID)))
}
