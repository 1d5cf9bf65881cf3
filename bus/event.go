package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/order-dispatch/models"
)

// LifecycleEvent is the broker representation of an order change.
type LifecycleEvent struct {
	ID            string          `json:"id"`
	Action        string          `json:"action"`
	OrderID       uint            `json:"order_id"`
	State         string          `json:"state"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewLifecycleEvent(action string, order models.Order) LifecycleEvent {
	return LifecycleEvent{
		ID:            uuid.NewString(),
		Action:        action,
		OrderID:       order.ID,
		State:         order.State(),
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total(),
		ItemCount:     len(order.OrderItems),
		OccurredAt:    time.Now().UTC(),
	}
}

// RoutingKey is "order.<action>", e.g. "order.charged".
func (e LifecycleEvent) RoutingKey() string {
	return fmt.Sprintf("order.%s", e.Action)
}

func (e LifecycleEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
