package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CashMovementIncome  = "INCOME"
	CashMovementExpense = "EXPENSE"
	CashMovementSale    = "SALE"
	CashMovementRefund  = "REFUND"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
	PaymentMethodQRIS     = "qris"
)

// CashMovement is an immutable entry in a cash session ledger.
// Amount is signed: SALE and INCOME positive, REFUND and EXPENSE negative.
// The (order_id, kind) unique index keeps a single SALE per order.
type CashMovement struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CashSessionID uint            `gorm:"not null;index" json:"cash_session_id"`
	Kind          string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_order_kind" json:"kind"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PaymentMethod string          `gorm:"type:varchar(20)" json:"payment_method"`
	OrderID       *uint           `gorm:"uniqueIndex:idx_order_kind" json:"order_id,omitempty"`
	Description   string          `gorm:"type:varchar(255)" json:"description"`
	CreatedBy     uint            `gorm:"not null" json:"created_by"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func IsPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodQRIS:
		return true
	}
	return false
}
