package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Preparation axis.
const (
	OrderStatusPending       = "PENDING"
	OrderStatusInPreparation = "IN_PREPARATION"
	OrderStatusReady         = "READY"
	OrderStatusDelivered     = "DELIVERED"
	OrderStatusCancelled     = "CANCELLED"
)

// Payment axis.
const (
	PaymentStatusUnpaid   = "UNPAID"
	PaymentStatusCharged  = "CHARGED"
	PaymentStatusRefunded = "REFUNDED"
)

// StateCharged is the combined-view state of a charged, not cancelled order.
const StateCharged = "CHARGED"

type Order struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	CreatedBy     uint        `gorm:"not null;index" json:"created_by"`
	CreatorRole   Role        `gorm:"type:varchar(20);not null" json:"creator_role"`
	Status        string      `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	PaymentStatus string      `gorm:"type:varchar(20);not null;default:'UNPAID'" json:"payment_status"`
	Notes         string      `gorm:"type:text" json:"notes"`
	CancelReason  string      `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledBy   *uint       `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time  `json:"cancelled_at,omitempty"`
	ChargedAt     *time.Time  `json:"charged_at,omitempty"`
	DeliveredAt   *time.Time  `json:"delivered_at,omitempty"`
	CreatedAt     time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"not null" json:"updated_at"`
	OrderItems    []OrderItem `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"order_items"`
}

// State collapses both axes into the single lifecycle state exposed to clients.
func (o *Order) State() string {
	switch {
	case o.Status == OrderStatusCancelled:
		return OrderStatusCancelled
	case o.PaymentStatus == PaymentStatusCharged:
		return StateCharged
	default:
		return o.Status
	}
}

func (o *Order) IsCancelled() bool { return o.Status == OrderStatusCancelled }

func (o *Order) IsCharged() bool { return o.PaymentStatus == PaymentStatusCharged }

// Total sums unit price times quantity over every non-complement item.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.OrderItems {
		total = total.Add(item.Subtotal())
	}
	return total
}

// preparationRank orders the forward edges of the preparation axis.
var preparationRank = map[string]int{
	OrderStatusPending:       0,
	OrderStatusInPreparation: 1,
	OrderStatusReady:         2,
	OrderStatusDelivered:     3,
}

// PreparationRank returns the position of status on the preparation axis.
func PreparationRank(status string) (int, bool) {
	rank, ok := preparationRank[status]
	return rank, ok
}

// OrderView is the wire shape of an order: the stored columns plus the
// combined state and the complement-free total.
type OrderView struct {
	Order
	State string          `json:"state"`
	Total decimal.Decimal `json:"total"`
}

func (o Order) View() OrderView {
	return OrderView{Order: o, State: o.State(), Total: o.Total()}
}
