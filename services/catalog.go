package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yeremiapane/order-dispatch/models"
	"gorm.io/gorm"
)

// Catalog is the read-only view of products, combos and promotions.
// Every lookup takes the handle it runs on so settlement reads share the
// surrounding transaction.
type Catalog interface {
	Product(tx *gorm.DB, id uint) (*models.Product, error)
	Combo(tx *gorm.DB, id uint) (*models.Combo, error)
	Promotion(tx *gorm.DB, id uint) (*models.Promotion, error)
	CategoryByName(tx *gorm.DB, name string) (*models.Category, error)
}

// GormCatalog reads the catalog tables directly.
type GormCatalog struct{}

func NewGormCatalog() *GormCatalog {
	return &GormCatalog{}
}

func (GormCatalog) Product(tx *gorm.DB, id uint) (*models.Product, error) {
	var product models.Product
	if err := tx.Preload("Category").First(&product, id).Error; err != nil {
		return nil, notFoundOr(err, "product %d not found", id)
	}
	return &product, nil
}

func (GormCatalog) Combo(tx *gorm.DB, id uint) (*models.Combo, error) {
	var combo models.Combo
	if err := tx.Preload("Category").Preload("Members").First(&combo, id).Error; err != nil {
		return nil, notFoundOr(err, "combo %d not found", id)
	}
	return &combo, nil
}

func (GormCatalog) Promotion(tx *gorm.DB, id uint) (*models.Promotion, error) {
	var promo models.Promotion
	if err := tx.Preload("Category").Preload("Members").First(&promo, id).Error; err != nil {
		return nil, notFoundOr(err, "promotion %d not found", id)
	}
	return &promo, nil
}

// CategoryByName matches case-insensitively.
func (GormCatalog) CategoryByName(tx *gorm.DB, name string) (*models.Category, error) {
	var category models.Category
	err := tx.Where("LOWER(name) = ?", strings.ToLower(name)).First(&category).Error
	if err != nil {
		return nil, notFoundOr(err, "category %q not found", name)
	}
	return &category, nil
}

func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(format, args...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
