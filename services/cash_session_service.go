package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
	"gorm.io/gorm"
)

// SessionFilter narrows GetOpenSession. Zero fields are ignored.
type SessionFilter struct {
	ID        uint
	CashierID uint
	BranchID  uint
}

// MovementInput is one cash ledger entry to record.
type MovementInput struct {
	SessionID   uint
	Kind        string
	Amount      decimal.Decimal
	Method      string
	OrderID     *uint
	Description string
	Operator    uint
}

// CashSessionStore tracks registers and their signed cash movements.
type CashSessionStore struct {
	db *gorm.DB
}

func NewCashSessionStore(db *gorm.DB) *CashSessionStore {
	return &CashSessionStore{db: db}
}

// OpenSession opens a register for the acting cashier. A cashier holds at
// most one open register.
func (s *CashSessionStore) OpenSession(op models.Operator, branchID uint, opening decimal.Decimal) (*models.CashSession, error) {
	if !op.Role.In(models.RoleCashier, models.RoleAdmin) {
		return nil, Forbidden("role %s cannot open a cash session", op.Role)
	}
	if opening.IsNegative() {
		return nil, Invalid("opening balance must not be negative")
	}

	session := &models.CashSession{
		BranchID:       branchID,
		CashierID:      op.ID,
		Status:         models.CashSessionOpen,
		OpeningBalance: opening,
		OpenedAt:       time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.GetOpenSession(tx, SessionFilter{CashierID: op.ID})
		if err != nil {
			return err
		}
		if existing != nil {
			return Precondition("operator %d already has open cash session %d", op.ID, existing.ID)
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"cashier_id": op.ID,
		"branch_id":  branchID,
	}).Info("cash session opened")
	return session, nil
}

// CloseSession closes a register; the closing balance is the opening
// balance plus every signed movement.
func (s *CashSessionStore) CloseSession(op models.Operator, sessionID uint) (*models.CashSession, error) {
	tx := s.db.Begin()

	session, err := s.Session(tx, sessionID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !session.IsOpen() {
		tx.Rollback()
		return nil, Precondition("cash session %d is already closed", sessionID)
	}
	if err := AuthorizeSession(session, op); err != nil {
		tx.Rollback()
		return nil, err
	}

	var movements []models.CashMovement
	if err := tx.Where("cash_session_id = ?", sessionID).Find(&movements).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to load movements: %w", err)
	}
	balance := session.OpeningBalance
	for _, m := range movements {
		balance = balance.Add(m.Amount)
	}

	now := time.Now()
	session.Status = models.CashSessionClosed
	session.ClosingBalance = &balance
	session.ClosedBy = &op.ID
	session.ClosedAt = &now
	if err := tx.Save(session).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to close cash session: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"closed_by":  op.ID,
		"balance":    balance.StringFixed(2),
	}).Info("cash session closed")
	return session, nil
}

// Session loads a register by id regardless of its state.
func (s *CashSessionStore) Session(tx *gorm.DB, id uint) (*models.CashSession, error) {
	var session models.CashSession
	if err := tx.First(&session, id).Error; err != nil {
		return nil, notFoundOr(err, "cash session %d not found", id)
	}
	return &session, nil
}

// GetOpenSession returns the newest open register matching filter, or nil.
func (s *CashSessionStore) GetOpenSession(tx *gorm.DB, filter SessionFilter) (*models.CashSession, error) {
	q := tx.Where("status = ?", models.CashSessionOpen)
	if filter.ID != 0 {
		q = q.Where("id = ?", filter.ID)
	}
	if filter.CashierID != 0 {
		q = q.Where("cashier_id = ?", filter.CashierID)
	}
	if filter.BranchID != 0 {
		q = q.Where("branch_id = ?", filter.BranchID)
	}

	var session models.CashSession
	err := q.Order("opened_at DESC, id DESC").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up open cash session: %w", err)
	}
	return &session, nil
}

// OpenSessions lists every open register.
func (s *CashSessionStore) OpenSessions() ([]models.CashSession, error) {
	var sessions []models.CashSession
	err := s.db.Where("status = ?", models.CashSessionOpen).Order("id").Find(&sessions).Error
	return sessions, err
}

// RecordMovement appends one movement. It must run inside the caller's transaction.
func (s *CashSessionStore) RecordMovement(tx *gorm.DB, in MovementInput) (*models.CashMovement, error) {
	movement := &models.CashMovement{
		CashSessionID: in.SessionID,
		Kind:          in.Kind,
		Amount:        in.Amount,
		PaymentMethod: in.Method,
		OrderID:       in.OrderID,
		Description:   in.Description,
		CreatedBy:     in.Operator,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(movement).Error; err != nil {
		return nil, fmt.Errorf("failed to record %s movement: %w", in.Kind, err)
	}
	return movement, nil
}

// RecordManualMovement books an INCOME or EXPENSE outside of any order.
func (s *CashSessionStore) RecordManualMovement(op models.Operator, sessionID uint, kind string, amount decimal.Decimal, method, description string) (*models.CashMovement, error) {
	if kind != models.CashMovementIncome && kind != models.CashMovementExpense {
		return nil, Invalid("manual movements must be INCOME or EXPENSE")
	}
	if !amount.IsPositive() {
		return nil, Invalid("amount must be positive")
	}
	if method == "" {
		method = models.PaymentMethodCash
	}
	if !models.IsPaymentMethod(method) {
		return nil, Invalid("unknown payment method %q", method)
	}
	if kind == models.CashMovementExpense {
		amount = amount.Neg()
	}

	var movement *models.CashMovement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		session, err := s.Session(tx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return Precondition("cash session %d is closed", sessionID)
		}
		if err := AuthorizeSession(session, op); err != nil {
			return err
		}
		movement, err = s.RecordMovement(tx, MovementInput{
			SessionID:   sessionID,
			Kind:        kind,
			Amount:      amount,
			Method:      method,
			Description: description,
			Operator:    op.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// SaleMovement returns the SALE movement of an order, or nil.
func (s *CashSessionStore) SaleMovement(tx *gorm.DB, orderID uint) (*models.CashMovement, error) {
	var movement models.CashMovement
	err := tx.Where("order_id = ? AND kind = ?", orderID, models.CashMovementSale).First(&movement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up sale movement: %w", err)
	}
	return &movement, nil
}

// AuthorizeSession enforces that settlement runs against a register owned by
// the acting cashier. Admins are unconditionally allowed.
func AuthorizeSession(session *models.CashSession, op models.Operator) error {
	switch op.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleCashier:
		if session.CashierID == op.ID {
			return nil
		}
		return Forbidden("cash session %d belongs to another cashier", session.ID)
	default:
		return Forbidden("role %s cannot operate cash session %d", op.Role, session.ID)
	}
}
