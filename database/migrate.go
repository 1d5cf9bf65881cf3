package database

import (
	"fmt"

	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
	"gorm.io/gorm"
)

// Models lists every table in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Category{},
		&models.Product{},
		&models.Combo{},
		&models.ComboItem{},
		&models.Promotion{},
		&models.PromotionItem{},
		&models.CashSession{},
		&models.Order{},
		&models.OrderItem{},
		&models.CashMovement{},
		&models.InventoryMovement{},
		&models.WorkAssignment{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to AutoMigrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
