package models

import "strings"

// Role is the operator role resolved once at the auth boundary.
type Role string

const (
	RoleWaiter    Role = "waiter"
	RoleBartender Role = "bartender"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

// ParseRole normalises a raw role string. ok is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleWaiter, RoleBartender, RoleCashier, RoleManager, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// Operator is the acting identity passed into every core operation.
type Operator struct {
	ID   uint `json:"id"`
	Role Role `json:"role"`
}
