package services

import (
	"fmt"
	"time"

	"github.com/yeremiapane/order-dispatch/models"
	"gorm.io/gorm"
)

// StockDelta describes one signed stock change.
type StockDelta struct {
	ProductID uint
	Quantity  int
	Kind      string
	Reason    string
	OrderID   *uint
	Operator  uint
}

// InventoryLedger applies stock deltas and appends the movement log.
type InventoryLedger struct{}

func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{}
}

// ApplyDelta performs a conditional read-modify-write on the product stock
// and records one InventoryMovement with the before/after snapshot. It must
// run inside the caller's transaction.
func (l *InventoryLedger) ApplyDelta(tx *gorm.DB, d StockDelta) (*models.InventoryMovement, error) {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock + ? >= 0", d.ProductID, d.Quantity).
		Update("stock", gorm.Expr("stock + ?", d.Quantity))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update stock of product %d: %w", d.ProductID, res.Error)
	}

	var product models.Product
	if err := tx.Select("id", "name", "stock").First(&product, d.ProductID).Error; err != nil {
		return nil, notFoundOr(err, "product %d not found", d.ProductID)
	}
	if res.RowsAffected == 0 {
		return nil, Precondition("insufficient stock for product %q: have %d, need %d",
			product.Name, product.Stock, -d.Quantity)
	}

	movement := &models.InventoryMovement{
		ProductID:   d.ProductID,
		Kind:        d.Kind,
		Quantity:    d.Quantity,
		StockBefore: product.Stock - d.Quantity,
		StockAfter:  product.Stock,
		Reason:      d.Reason,
		OrderID:     d.OrderID,
		CreatedBy:   d.Operator,
		CreatedAt:   time.Now(),
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, fmt.Errorf("failed to record inventory movement: %w", err)
	}
	return movement, nil
}

// Movements lists the log for a product, newest first.
func (l *InventoryLedger) Movements(db *gorm.DB, productID uint) ([]models.InventoryMovement, error) {
	var movements []models.InventoryMovement
	err := db.Where("product_id = ?", productID).Order("id DESC").Find(&movements).Error
	return movements, err
}

// OrderMovements lists the movements of one kind recorded for an order.
func (l *InventoryLedger) OrderMovements(tx *gorm.DB, orderID uint, kind string) ([]models.InventoryMovement, error) {
	var movements []models.InventoryMovement
	if err := tx.Where("order_id = ? AND kind = ?", orderID, kind).Order("id").Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to load inventory movements of order %d: %w", orderID, err)
	}
	return movements, nil
}
