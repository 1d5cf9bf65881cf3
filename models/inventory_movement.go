package models

import "time"

const (
	InventoryMovementIn     = "IN"
	InventoryMovementOut    = "OUT"
	InventoryMovementAdjust = "ADJUST"
	InventoryMovementSale   = "SALE"
)

// InventoryMovement is append-only; Quantity is signed.
type InventoryMovement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProductID   uint      `gorm:"not null;index" json:"product_id"`
	Kind        string    `gorm:"type:varchar(10);not null" json:"kind"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	StockBefore int       `gorm:"not null" json:"stock_before"`
	StockAfter  int       `gorm:"not null" json:"stock_after"`
	Reason      string    `gorm:"type:varchar(255)" json:"reason"`
	OrderID     *uint     `gorm:"index" json:"order_id,omitempty"`
	CreatedBy   uint      `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}
