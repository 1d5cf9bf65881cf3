package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CashSessionOpen   = "OPEN"
	CashSessionClosed = "CLOSED"
)

// CashSession is a register: one cashier's open/closed cash-handling period.
type CashSession struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	BranchID       uint             `gorm:"not null;index" json:"branch_id"`
	CashierID      uint             `gorm:"not null;index" json:"cashier_id"`
	Status         string           `gorm:"type:varchar(10);not null;default:'OPEN';index" json:"status"`
	OpeningBalance decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"opening_balance"`
	ClosingBalance *decimal.Decimal `gorm:"type:decimal(12,2)" json:"closing_balance,omitempty"`
	ClosedBy       *uint            `json:"closed_by,omitempty"`
	OpenedAt       time.Time        `gorm:"not null" json:"opened_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
	Movements      []CashMovement   `gorm:"foreignKey:CashSessionID" json:"movements,omitempty"`
}

func (s *CashSession) IsOpen() bool { return s.Status == CashSessionOpen }
