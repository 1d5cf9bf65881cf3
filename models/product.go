package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product, Combo and Promotion are read-only catalog data for the dispatch core.
type Product struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	CategoryID uint            `gorm:"not null" json:"category_id"`
	Category   Category        `gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"category"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Stock      int             `gorm:"not null;default:0" json:"stock"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

type Combo struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	CategoryID *uint           `json:"category_id,omitempty"`
	Category   *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Members    []ComboItem     `gorm:"foreignKey:ComboID" json:"members"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

type ComboItem struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	ComboID   uint `gorm:"not null;index" json:"combo_id"`
	ProductID uint `gorm:"not null" json:"product_id"`
	Quantity  int  `gorm:"not null;default:1" json:"quantity"`
}

type Promotion struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	CategoryID         *uint           `json:"category_id,omitempty"`
	Category           *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Name               string          `gorm:"type:varchar(255);not null" json:"name"`
	Price              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Active             bool            `gorm:"not null;default:true" json:"active"`
	RequiredDrinkCount int             `gorm:"not null;default:0" json:"required_drink_count"`
	Members            []PromotionItem `gorm:"foreignKey:PromotionID" json:"members"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

type PromotionItem struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	PromotionID uint `gorm:"not null;index" json:"promotion_id"`
	ProductID   uint `gorm:"not null" json:"product_id"`
	Quantity    int  `gorm:"not null;default:1" json:"quantity"`
}
