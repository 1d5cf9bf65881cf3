package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Complement kinds.
const (
	ComplementMixer          = "mixer"
	ComplementGarnish        = "garnish"
	ComplementPromotionDrink = "promotion_drink"
)

type OrderItem struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	OrderID uint `gorm:"not null;index" json:"order_id"`

	ProductID   *uint `gorm:"index" json:"product_id,omitempty"`
	ComboID     *uint `json:"combo_id,omitempty"`
	PromotionID *uint `json:"promotion_id,omitempty"`
	CustomPrice bool  `gorm:"not null;default:false" json:"custom_price"`

	Name         string          `gorm:"type:varchar(255)" json:"name"`
	CategoryID   *uint           `json:"category_id,omitempty"`
	CategoryName string          `gorm:"type:varchar(100)" json:"category_name"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Notes        string          `gorm:"type:text" json:"notes"`

	IsComplement   bool   `gorm:"not null;default:false" json:"is_complement"`
	ComplementKind string `gorm:"type:varchar(30)" json:"complement_kind,omitempty"`
	HostItemID     *uint  `json:"host_item_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// Subtotal is zero for complements.
func (i OrderItem) Subtotal() decimal.Decimal {
	if i.IsComplement {
		return decimal.Zero
	}
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
