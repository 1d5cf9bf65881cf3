package models

import "time"

// WorkAssignment links a bartender to a register and optionally a waiter.
// A bartender holds at most one active assignment.
type WorkAssignment struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	BartenderID   uint       `gorm:"not null;index" json:"bartender_id"`
	WaiterID      *uint      `gorm:"index" json:"waiter_id,omitempty"`
	CashSessionID *uint      `gorm:"index" json:"cash_session_id,omitempty"`
	Active        bool       `gorm:"not null;default:true;index" json:"active"`
	CreatedBy     uint       `gorm:"not null" json:"created_by"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}
