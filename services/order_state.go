package services

import "github.com/yeremiapane/order-dispatch/models"

// Who may move an order into each preparation status.
var advancePermissions = map[string][]models.Role{
	models.OrderStatusInPreparation: {models.RoleBartender, models.RoleAdmin},
	models.OrderStatusReady:         {models.RoleBartender, models.RoleAdmin},
	models.OrderStatusDelivered:     {models.RoleBartender, models.RoleAdmin, models.RoleCashier},
}

var (
	createRoles = []models.Role{models.RoleWaiter, models.RoleCashier, models.RoleAdmin}
	chargeRoles = []models.Role{models.RoleCashier, models.RoleAdmin}
	cancelRoles = []models.Role{models.RoleAdmin, models.RoleManager, models.RoleCashier}
)

// checkAdvance validates a preparation-axis transition for role.
func checkAdvance(order *models.Order, target string, role models.Role) error {
	allowed, ok := advancePermissions[target]
	if !ok {
		return Invalid("%q is not a preparation state; use the charge or cancel operations", target)
	}
	if !role.In(allowed...) {
		return Forbidden("role %s cannot move orders to %s", role, target)
	}
	if order.IsCancelled() {
		return Precondition("order %d is cancelled", order.ID)
	}

	from, _ := models.PreparationRank(order.Status)
	to, _ := models.PreparationRank(target)
	if to <= from {
		return Precondition("order %d cannot move from %s to %s", order.ID, order.Status, target)
	}
	return nil
}

// checkCharge validates the CHARGED transition. Charging leaves the
// preparation axis untouched.
func checkCharge(order *models.Order, role models.Role) error {
	if !role.In(chargeRoles...) {
		return Forbidden("role %s cannot charge orders", role)
	}
	switch {
	case order.IsCancelled():
		return Precondition("order %d is cancelled", order.ID)
	case order.PaymentStatus != models.PaymentStatusUnpaid:
		return Precondition("order %d is already charged", order.ID)
	case order.Status == models.OrderStatusDelivered:
		return Precondition("order %d was delivered before being charged", order.ID)
	}
	return nil
}

func checkCancel(order *models.Order, role models.Role) error {
	if !role.In(cancelRoles...) {
		return Forbidden("role %s cannot cancel orders", role)
	}
	if order.IsCancelled() {
		return Precondition("order %d is already cancelled", order.ID)
	}
	return nil
}
