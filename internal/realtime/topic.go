// Package realtime delivers order state changes to live subscribers.
// Delivery is best-effort and at-most-once; subscribers re-fetch state on reconnect.
package realtime

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const (
	kitchenPrefix   = "kitchen."
	dashboardPrefix = "dashboard."
	orderPrefix     = "order."
)

// Publisher sends payload to every current subscriber of topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

func KitchenTopic(restaurantID uuid.UUID) string {
	return kitchenPrefix + restaurantID.String()
}

func DashboardTopic(restaurantID uuid.UUID) string {
	return dashboardPrefix + restaurantID.String()
}

func OrderTopic(orderID uuid.UUID) string {
	return orderPrefix + orderID.String()
}

// ValidTopic reports whether topic is one of the three audiences with a well formed id
func ValidTopic(topic string) bool {
	for _, prefix := range []string{kitchenPrefix, dashboardPrefix, orderPrefix} {
		if id, ok := strings.CutPrefix(topic, prefix); ok {
			_, err := uuid.Parse(id)
			return err == nil
		}
	}
	return false
}

// Patterns matches every topic, in the glob syntax of Redis PSUBSCRIBE
var Patterns = []string{kitchenPrefix + "*", dashboardPrefix + "*", orderPrefix + "*"}
