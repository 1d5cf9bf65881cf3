package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
	"gorm.io/gorm"
)

// AssignmentFilter narrows ListActive. Zero fields are ignored.
type AssignmentFilter struct {
	BartenderID   uint
	WaiterID      uint
	CashSessionID uint
}

type CreateAssignmentInput struct {
	BartenderID   uint  `json:"bartender_id" binding:"required"`
	WaiterID      *uint `json:"waiter_id"`
	CashSessionID *uint `json:"cash_session_id"`
}

// AssignmentRegistry holds the bartender/waiter/register work graph.
type AssignmentRegistry struct {
	db *gorm.DB
}

func NewAssignmentRegistry(db *gorm.DB) *AssignmentRegistry {
	return &AssignmentRegistry{db: db}
}

// Create stores a new active assignment and deactivates every previously
// active assignment of the same bartender in the same transaction.
func (r *AssignmentRegistry) Create(op models.Operator, in CreateAssignmentInput) (*models.WorkAssignment, error) {
	if !op.Role.In(models.RoleAdmin, models.RoleManager, models.RoleCashier) {
		return nil, Forbidden("role %s cannot manage work assignments", op.Role)
	}
	if in.BartenderID == 0 {
		return nil, Invalid("bartender_id is required")
	}
	if in.WaiterID == nil && in.CashSessionID == nil {
		return nil, Invalid("an assignment needs a waiter or a cash session")
	}

	now := time.Now()
	assignment := &models.WorkAssignment{
		BartenderID:   in.BartenderID,
		WaiterID:      in.WaiterID,
		CashSessionID: in.CashSessionID,
		Active:        true,
		CreatedBy:     op.ID,
		CreatedAt:     now,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if in.CashSessionID != nil {
			var session models.CashSession
			if err := tx.First(&session, *in.CashSessionID).Error; err != nil {
				return notFoundOr(err, "cash session %d not found", *in.CashSessionID)
			}
			if !session.IsOpen() {
				return Precondition("cash session %d is closed", session.ID)
			}
		}

		if err := tx.Model(&models.WorkAssignment{}).
			Where("bartender_id = ? AND active = ?", in.BartenderID, true).
			Updates(map[string]interface{}{"active": false, "deactivated_at": now}).Error; err != nil {
			return fmt.Errorf("failed to deactivate previous assignments: %w", err)
		}
		return tx.Create(assignment).Error
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"assignment_id": assignment.ID,
		"bartender_id":  assignment.BartenderID,
	}).Info("work assignment created")
	return assignment, nil
}

// ListActive returns active assignments matching filter, oldest first.
func (r *AssignmentRegistry) ListActive(tx *gorm.DB, filter AssignmentFilter) ([]models.WorkAssignment, error) {
	q := tx.Where("active = ?", true)
	if filter.BartenderID != 0 {
		q = q.Where("bartender_id = ?", filter.BartenderID)
	}
	if filter.WaiterID != 0 {
		q = q.Where("waiter_id = ?", filter.WaiterID)
	}
	if filter.CashSessionID != 0 {
		q = q.Where("cash_session_id = ?", filter.CashSessionID)
	}

	var assignments []models.WorkAssignment
	if err := q.Order("id").Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

// ActiveForBartender may return more than one row if the store was written
// by something other than Create; callers union them.
func (r *AssignmentRegistry) ActiveForBartender(tx *gorm.DB, bartenderID uint) ([]models.WorkAssignment, error) {
	return r.ListActive(tx, AssignmentFilter{BartenderID: bartenderID})
}

func (r *AssignmentRegistry) ActiveForRegister(tx *gorm.DB, sessionID uint) ([]models.WorkAssignment, error) {
	return r.ListActive(tx, AssignmentFilter{CashSessionID: sessionID})
}

// Deactivate turns off a single assignment.
func (r *AssignmentRegistry) Deactivate(op models.Operator, id uint) (*models.WorkAssignment, error) {
	if !op.Role.In(models.RoleAdmin, models.RoleManager, models.RoleCashier) {
		return nil, Forbidden("role %s cannot manage work assignments", op.Role)
	}

	var assignment models.WorkAssignment
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&assignment, id).Error; err != nil {
			return notFoundOr(err, "assignment %d not found", id)
		}
		if !assignment.Active {
			return Precondition("assignment %d is already inactive", id)
		}
		now := time.Now()
		assignment.Active = false
		assignment.DeactivatedAt = &now
		return tx.Model(&assignment).Updates(map[string]interface{}{"active": false, "deactivated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}
