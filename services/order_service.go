package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lifecycle actions handed to the notifier.
const (
	ActionCreated      = "created"
	ActionStateChanged = "state_changed"
	ActionCharged      = "charged"
	ActionCancelled    = "cancelled"
	ActionReturned     = "returned"
)

// Notifier receives every committed lifecycle mutation.
type Notifier interface {
	OrderChanged(action string, order models.Order)
}

// Notifiers fans one notification out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) OrderChanged(action string, order models.Order) {
	for _, n := range ns {
		n.OrderChanged(action, order)
	}
}

type CreateItemInput struct {
	ProductID   *uint `json:"product_id"`
	ComboID     *uint `json:"combo_id"`
	PromotionID *uint `json:"promotion_id"`
	// Custom marks an ad-hoc item priced by UnitPrice.
	Custom    bool             `json:"custom"`
	Name      string           `json:"name"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Quantity  int              `json:"quantity"`
	Notes     string           `json:"notes"`

	IsComplement   bool   `json:"is_complement"`
	ComplementKind string `json:"complement_kind"`
	// HostIndex points at an earlier item of the same request.
	HostIndex *int `json:"host_index"`
}

type CreateOrderInput struct {
	Notes string            `json:"notes"`
	Items []CreateItemInput `json:"items"`
}

type ChargeInput struct {
	SessionID     uint   `json:"cash_session_id"`
	PaymentMethod string `json:"payment_method"`
}

type CancelInput struct {
	Motive        string `json:"motive"`
	RevertPayment bool   `json:"revert_payment"`
	// SessionID optionally names the register receiving the refund.
	SessionID *uint `json:"cash_session_id"`
}

type ReturnInput struct {
	SessionID    uint   `json:"cash_session_id"`
	Motive       string `json:"motive"`
	RestoreStock bool   `json:"restore_stock"`
}

// SettlementResult confirms a charge, cancel or return.
type SettlementResult struct {
	Order              models.OrderView           `json:"order"`
	CashMovement       *models.CashMovement       `json:"cash_movement,omitempty"`
	InventoryMovements []models.InventoryMovement `json:"inventory_movements"`
}

// OrderService owns the order state machine and the settlement transactions.
type OrderService struct {
	db       *gorm.DB
	catalog  Catalog
	ledger   *InventoryLedger
	cash     *CashSessionStore
	notifier Notifier
}

func NewOrderService(db *gorm.DB, catalog Catalog, ledger *InventoryLedger, cash *CashSessionStore, notifier Notifier) *OrderService {
	return &OrderService{
		db:       db,
		catalog:  catalog,
		ledger:   ledger,
		cash:     cash,
		notifier: notifier,
	}
}

// CreateOrder validates catalog references and stock, then stores the order.
// Stock is not decremented until the order is charged.
func (s *OrderService) CreateOrder(op models.Operator, in CreateOrderInput) (*models.OrderView, error) {
	if !op.Role.In(createRoles...) {
		return nil, Forbidden("role %s cannot create orders", op.Role)
	}
	if len(in.Items) == 0 {
		return nil, Invalid("an order needs at least one item")
	}
	if err := validateItemShapes(in.Items); err != nil {
		return nil, err
	}

	now := time.Now()
	order := models.Order{
		CreatedBy:     op.ID,
		CreatorRole:   op.Role,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		items, err := s.buildItems(tx, in.Items, now)
		if err != nil {
			return err
		}

		if err := tx.Omit("OrderItems").Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		created := make([]uint, len(items))
		for i := range items {
			items[i].OrderID = order.ID
			if host := in.Items[i].HostIndex; in.Items[i].IsComplement && host != nil {
				hostID := created[*host]
				items[i].HostItemID = &hostID
			}
			if err := tx.Create(&items[i]).Error; err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			created[i] = items[i].ID
		}
		order.OrderItems = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"operator_id": op.ID,
		"role":        op.Role,
		"items":       len(order.OrderItems),
	}).Info("order created")

	s.notify(ActionCreated, order)
	view := order.View()
	return &view, nil
}

func validateItemShapes(items []CreateItemInput) error {
	for i, item := range items {
		if item.Quantity <= 0 {
			return Invalid("item %d: quantity must be positive", i)
		}

		refs := 0
		for _, set := range []bool{item.ProductID != nil, item.ComboID != nil, item.PromotionID != nil, item.Custom} {
			if set {
				refs++
			}
		}
		if refs != 1 {
			return Invalid("item %d: exactly one of product, combo, promotion or custom is required", i)
		}

		if item.Custom && !item.IsComplement {
			if item.UnitPrice == nil || item.UnitPrice.IsNegative() {
				return Invalid("item %d: custom items need a non-negative unit_price", i)
			}
			if strings.TrimSpace(item.Name) == "" {
				return Invalid("item %d: custom items need a name", i)
			}
		}

		if !item.IsComplement {
			if item.HostIndex != nil {
				return Invalid("item %d: only complements may reference a host item", i)
			}
			continue
		}
		if item.ComboID != nil || item.PromotionID != nil {
			return Invalid("item %d: complements must be a product or a custom entry", i)
		}
		if item.HostIndex == nil || *item.HostIndex < 0 || *item.HostIndex >= i {
			return Invalid("item %d: complements must reference an earlier host item", i)
		}
		if items[*item.HostIndex].IsComplement {
			return Invalid("item %d: a complement cannot host another complement", i)
		}
	}

	// promotions with a required drink count need that many drink complements
	drinks := make(map[int]int)
	for _, item := range items {
		if item.IsComplement && item.ComplementKind == models.ComplementPromotionDrink {
			drinks[*item.HostIndex] += item.Quantity
		}
	}
	for i, item := range items {
		if item.PromotionID == nil && drinks[i] > 0 {
			return Invalid("item %d: promotion drinks must be attached to a promotion", i)
		}
	}
	return nil
}

// buildItems resolves catalog data, freezes unit prices and validates stock.
func (s *OrderService) buildItems(tx *gorm.DB, in []CreateItemInput, now time.Time) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, len(in))
	need := make(map[uint]int)
	names := make(map[uint]string)
	stock := make(map[uint]int)

	addNeed := func(p *models.Product, qty int) {
		need[p.ID] += qty
		names[p.ID] = p.Name
		stock[p.ID] = p.Stock
	}

	for i, req := range in {
		item := models.OrderItem{
			Quantity:       req.Quantity,
			Notes:          req.Notes,
			IsComplement:   req.IsComplement,
			ComplementKind: req.ComplementKind,
			UnitPrice:      decimal.Zero,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		switch {
		case req.ProductID != nil:
			product, err := s.catalog.Product(tx, *req.ProductID)
			if err != nil {
				return nil, err
			}
			item.ProductID = &product.ID
			item.Name = product.Name
			item.CategoryID = &product.CategoryID
			item.CategoryName = product.Category.Name
			item.UnitPrice = product.Price
			addNeed(product, req.Quantity)

		case req.ComboID != nil:
			combo, err := s.catalog.Combo(tx, *req.ComboID)
			if err != nil {
				return nil, err
			}
			item.ComboID = &combo.ID
			item.Name = combo.Name
			item.UnitPrice = combo.Price
			if combo.Category != nil {
				item.CategoryID = &combo.Category.ID
				item.CategoryName = combo.Category.Name
			}
			for _, member := range combo.Members {
				product, err := s.catalog.Product(tx, member.ProductID)
				if err != nil {
					return nil, err
				}
				addNeed(product, member.Quantity*req.Quantity)
			}

		case req.PromotionID != nil:
			promo, err := s.catalog.Promotion(tx, *req.PromotionID)
			if err != nil {
				return nil, err
			}
			if !promo.Active {
				return nil, Precondition("promotion %q is not active", promo.Name)
			}
			drinks := 0
			for _, other := range in {
				if other.IsComplement && other.ComplementKind == models.ComplementPromotionDrink &&
					other.HostIndex != nil && *other.HostIndex == i {
					drinks += other.Quantity
				}
			}
			if want := promo.RequiredDrinkCount * req.Quantity; drinks != want {
				return nil, Invalid("item %d: promotion %q needs %d drinks, got %d", i, promo.Name, want, drinks)
			}
			item.PromotionID = &promo.ID
			item.Name = promo.Name
			item.UnitPrice = promo.Price
			if promo.Category != nil {
				item.CategoryID = &promo.Category.ID
				item.CategoryName = promo.Category.Name
			}
			for _, member := range promo.Members {
				product, err := s.catalog.Product(tx, member.ProductID)
				if err != nil {
					return nil, err
				}
				addNeed(product, member.Quantity*req.Quantity)
			}

		default:
			item.CustomPrice = true
			item.Name = strings.TrimSpace(req.Name)
			if req.UnitPrice != nil {
				item.UnitPrice = *req.UnitPrice
			}
		}

		if item.IsComplement {
			item.UnitPrice = decimal.Zero
		}
		items[i] = item
	}

	for id, qty := range need {
		if stock[id] < qty {
			return nil, Precondition("insufficient stock for product %q: have %d, need %d", names[id], stock[id], qty)
		}
	}
	return items, nil
}

// AdvanceState moves an order forward on the preparation axis.
func (s *OrderService) AdvanceState(op models.Operator, orderID uint, target string) (*models.OrderView, error) {
	target = strings.ToUpper(strings.TrimSpace(target))

	var order *models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := checkAdvance(order, target, op.Role); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{"status": target, "updated_at": now}
		if target == models.OrderStatusDelivered {
			updates["delivered_at"] = now
			order.DeliveredAt = &now
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order state: %w", err)
		}
		order.Status = target
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"operator_id": op.ID,
		"state":       target,
	}).Info("order state advanced")

	s.notify(ActionStateChanged, *order)
	view := order.View()
	return &view, nil
}

// Charge settles an order against an open register: one SALE movement, the
// stock decrement of every constituent product and its inventory log, all
// in one transaction.
func (s *OrderService) Charge(op models.Operator, orderID uint, in ChargeInput) (*SettlementResult, error) {
	if !op.Role.In(chargeRoles...) {
		return nil, Forbidden("role %s cannot charge orders", op.Role)
	}
	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if !models.IsPaymentMethod(method) {
		return nil, Invalid("unknown payment method %q", in.PaymentMethod)
	}
	if in.SessionID == 0 {
		return nil, Invalid("cash_session_id is required")
	}

	result := &SettlementResult{}
	var order *models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := checkCharge(order, op.Role); err != nil {
			return err
		}
		sale, err := s.cash.SaleMovement(tx, order.ID)
		if err != nil {
			return err
		}
		if sale != nil {
			return Precondition("order %d is already charged (sale movement %d)", order.ID, sale.ID)
		}

		session, err := s.cash.Session(tx, in.SessionID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return Precondition("cash session %d is closed", session.ID)
		}
		if err := AuthorizeSession(session, op); err != nil {
			return err
		}

		total, err := s.freezeTotal(tx, order)
		if err != nil {
			return err
		}

		result.CashMovement, err = s.cash.RecordMovement(tx, MovementInput{
			SessionID:   session.ID,
			Kind:        models.CashMovementSale,
			Amount:      total,
			Method:      method,
			OrderID:     &order.ID,
			Description: fmt.Sprintf("sale order #%d", order.ID),
			Operator:    op.ID,
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Precondition("order %d is already charged", order.ID)
		}
		if err != nil {
			return err
		}

		result.InventoryMovements, err = s.moveStock(tx, order, -1, models.InventoryMovementSale,
			fmt.Sprintf("sale order #%d", order.ID), op.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusCharged,
			"charged_at":     now,
			"updated_at":     now,
		}).Error; err != nil {
			return fmt.Errorf("failed to mark order charged: %w", err)
		}
		order.PaymentStatus = models.PaymentStatusCharged
		order.ChargedAt = &now
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"operator_id": op.ID,
		"session_id":  in.SessionID,
		"amount":      result.CashMovement.Amount.StringFixed(2),
	}).Info("order charged")

	s.notify(ActionCharged, *order)
	result.Order = order.View()
	return result, nil
}

// Cancel terminates an order. A charged order with RevertPayment gets a
// REFUND of the original sale and its stock restored.
func (s *OrderService) Cancel(op models.Operator, orderID uint, in CancelInput) (*SettlementResult, error) {
	if !op.Role.In(cancelRoles...) {
		return nil, Forbidden("role %s cannot cancel orders", op.Role)
	}
	motive := strings.TrimSpace(in.Motive)
	if motive == "" {
		return nil, Invalid("a cancellation motive is required")
	}

	result := &SettlementResult{InventoryMovements: []models.InventoryMovement{}}
	var order *models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := checkCancel(order, op.Role); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if order.IsCharged() && in.RevertPayment {
			sale, err := s.cash.SaleMovement(tx, order.ID)
			if err != nil {
				return err
			}
			amount, method := decimal.Zero, models.PaymentMethodCash
			if sale != nil {
				amount, method = sale.Amount, sale.PaymentMethod
			} else {
				utils.ErrorLogger.WithField("order_id", order.ID).
					Warn("charged order without sale movement, refunding recomputed total")
				amount, err = s.freezeTotal(tx, order)
				if err != nil {
					return err
				}
			}

			session, err := s.refundSession(tx, op, in.SessionID, sale)
			if err != nil {
				return err
			}

			result.CashMovement, err = s.cash.RecordMovement(tx, MovementInput{
				SessionID:   session.ID,
				Kind:        models.CashMovementRefund,
				Amount:      amount.Neg(),
				Method:      method,
				OrderID:     &order.ID,
				Description: fmt.Sprintf("cancel order #%d: %s", order.ID, motive),
				Operator:    op.ID,
			})
			if err != nil {
				return err
			}

			result.InventoryMovements, err = s.restoreStock(tx, order,
				fmt.Sprintf("cancel order #%d: %s", order.ID, motive), op.ID)
			if err != nil {
				return err
			}
			updates["payment_status"] = models.PaymentStatusRefunded
			order.PaymentStatus = models.PaymentStatusRefunded
		}

		return markCancelled(tx, order, op, motive, updates)
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"operator_id": op.ID,
		"reverted":    result.CashMovement != nil,
	}).Info("order cancelled")

	s.notify(ActionCancelled, *order)
	result.Order = order.View()
	return result, nil
}

// Return refunds a charged order against an open register. The original SALE
// movement is mandatory.
func (s *OrderService) Return(op models.Operator, orderID uint, in ReturnInput) (*SettlementResult, error) {
	if !op.Role.In(cancelRoles...) {
		return nil, Forbidden("role %s cannot return orders", op.Role)
	}
	motive := strings.TrimSpace(in.Motive)
	if motive == "" {
		return nil, Invalid("a return motive is required")
	}
	if in.SessionID == 0 {
		return nil, Invalid("cash_session_id is required")
	}

	result := &SettlementResult{InventoryMovements: []models.InventoryMovement{}}
	var order *models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.IsCancelled() {
			return Precondition("order %d is already cancelled", order.ID)
		}
		sale, err := s.cash.SaleMovement(tx, order.ID)
		if err != nil {
			return err
		}
		if sale == nil {
			return Precondition("order %d has no SALE movement to return", order.ID)
		}
		if order.State() != models.StateCharged {
			return Precondition("order %d is %s, only charged orders can be returned", order.ID, order.State())
		}

		session, err := s.refundSession(tx, op, &in.SessionID, sale)
		if err != nil {
			return err
		}

		result.CashMovement, err = s.cash.RecordMovement(tx, MovementInput{
			SessionID:   session.ID,
			Kind:        models.CashMovementRefund,
			Amount:      sale.Amount.Neg(),
			Method:      sale.PaymentMethod,
			OrderID:     &order.ID,
			Description: fmt.Sprintf("return order #%d: %s", order.ID, motive),
			Operator:    op.ID,
		})
		if err != nil {
			return err
		}

		if in.RestoreStock {
			result.InventoryMovements, err = s.restoreStock(tx, order,
				fmt.Sprintf("return order #%d: %s", order.ID, motive), op.ID)
			if err != nil {
				return err
			}
		}

		order.PaymentStatus = models.PaymentStatusRefunded
		return markCancelled(tx, order, op, motive, map[string]interface{}{
			"payment_status": models.PaymentStatusRefunded,
		})
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":      order.ID,
		"operator_id":   op.ID,
		"session_id":    in.SessionID,
		"restore_stock": in.RestoreStock,
	}).Info("order returned")

	s.notify(ActionReturned, *order)
	result.Order = order.View()
	return result, nil
}

// refundSession picks the register receiving a refund. An explicit session
// must be open and operable by op. Otherwise the operator's own open register
// is used; admins and managers fall back to the register of the original
// sale and then to any open register.
func (s *OrderService) refundSession(tx *gorm.DB, op models.Operator, sessionID *uint, sale *models.CashMovement) (*models.CashSession, error) {
	if sessionID != nil && *sessionID != 0 {
		session, err := s.cash.Session(tx, *sessionID)
		if err != nil {
			return nil, err
		}
		if !session.IsOpen() {
			return nil, Precondition("cash session %d is closed", session.ID)
		}
		if op.Role == models.RoleManager {
			return session, nil
		}
		if err := AuthorizeSession(session, op); err != nil {
			return nil, err
		}
		return session, nil
	}

	filters := []SessionFilter{{CashierID: op.ID}}
	if op.Role != models.RoleCashier {
		if sale != nil {
			filters = append(filters, SessionFilter{ID: sale.CashSessionID})
		}
		filters = append(filters, SessionFilter{})
	}
	for _, f := range filters {
		session, err := s.cash.GetOpenSession(tx, f)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	}
	return nil, Precondition("no open cash session available for the refund")
}

// freezeTotal prices combo and promotion items that were stored without a
// unit price and returns the complement-free total.
func (s *OrderService) freezeTotal(tx *gorm.DB, order *models.Order) (decimal.Decimal, error) {
	for i := range order.OrderItems {
		item := &order.OrderItems[i]
		if item.IsComplement || !item.UnitPrice.IsZero() {
			continue
		}

		var price decimal.Decimal
		switch {
		case item.ComboID != nil:
			combo, err := s.catalog.Combo(tx, *item.ComboID)
			if err != nil {
				return decimal.Zero, err
			}
			price = combo.Price
		case item.PromotionID != nil:
			promo, err := s.catalog.Promotion(tx, *item.PromotionID)
			if err != nil {
				return decimal.Zero, err
			}
			price = promo.Price
		default:
			continue
		}

		if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).Update("unit_price", price).Error; err != nil {
			return decimal.Zero, fmt.Errorf("failed to freeze item price: %w", err)
		}
		item.UnitPrice = price
	}
	return order.Total(), nil
}

// stockLine is one product and its quantity in the charge expansion.
type stockLine struct {
	productID uint
	quantity  int
}

// expandStock flattens the order into constituent products: combos and
// promotions expand into their members times the ordered quantity.
func (s *OrderService) expandStock(tx *gorm.DB, order *models.Order) ([]stockLine, error) {
	totals := make(map[uint]int)
	for _, item := range order.OrderItems {
		switch {
		case item.ProductID != nil:
			totals[*item.ProductID] += item.Quantity
		case item.ComboID != nil:
			combo, err := s.catalog.Combo(tx, *item.ComboID)
			if err != nil {
				return nil, err
			}
			for _, m := range combo.Members {
				totals[m.ProductID] += m.Quantity * item.Quantity
			}
		case item.PromotionID != nil:
			promo, err := s.catalog.Promotion(tx, *item.PromotionID)
			if err != nil {
				return nil, err
			}
			for _, m := range promo.Members {
				totals[m.ProductID] += m.Quantity * item.Quantity
			}
		}
	}

	lines := make([]stockLine, 0, len(totals))
	for id, qty := range totals {
		if qty > 0 {
			lines = append(lines, stockLine{productID: id, quantity: qty})
		}
	}
	// fixed order so concurrent settlements touch rows in the same sequence
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })
	return lines, nil
}

// moveStock applies sign × expansion to every product of the order.
func (s *OrderService) moveStock(tx *gorm.DB, order *models.Order, sign int, kind, reason string, operator uint) ([]models.InventoryMovement, error) {
	lines, err := s.expandStock(tx, order)
	if err != nil {
		return nil, err
	}
	return s.applyStock(tx, order, lines, sign, kind, reason, operator)
}

// restoreStock puts back exactly what the charge took, read from the SALE
// movements of the order, so later edits to combo or promotion members do
// not change the restored quantities.
func (s *OrderService) restoreStock(tx *gorm.DB, order *models.Order, reason string, operator uint) ([]models.InventoryMovement, error) {
	sold, err := s.ledger.OrderMovements(tx, order.ID, models.InventoryMovementSale)
	if err != nil {
		return nil, err
	}
	if len(sold) == 0 {
		utils.ErrorLogger.WithField("order_id", order.ID).
			Warn("charged order without sale stock movements, restoring recomputed expansion")
		return s.moveStock(tx, order, 1, models.InventoryMovementIn, reason, operator)
	}

	totals := make(map[uint]int, len(sold))
	for _, m := range sold {
		totals[m.ProductID] -= m.Quantity
	}
	lines := make([]stockLine, 0, len(totals))
	for id, qty := range totals {
		if qty > 0 {
			lines = append(lines, stockLine{productID: id, quantity: qty})
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })
	return s.applyStock(tx, order, lines, 1, models.InventoryMovementIn, reason, operator)
}

func (s *OrderService) applyStock(tx *gorm.DB, order *models.Order, lines []stockLine, sign int, kind, reason string, operator uint) ([]models.InventoryMovement, error) {
	movements := make([]models.InventoryMovement, 0, len(lines))
	for _, line := range lines {
		movement, err := s.ledger.ApplyDelta(tx, StockDelta{
			ProductID: line.productID,
			Quantity:  sign * line.quantity,
			Kind:      kind,
			Reason:    reason,
			OrderID:   &order.ID,
			Operator:  operator,
		})
		if err != nil {
			return nil, err
		}
		movements = append(movements, *movement)
	}
	return movements, nil
}

func markCancelled(tx *gorm.DB, order *models.Order, op models.Operator, motive string, updates map[string]interface{}) error {
	now := time.Now()
	updates["status"] = models.OrderStatusCancelled
	updates["cancel_reason"] = motive
	updates["cancelled_by"] = op.ID
	updates["cancelled_at"] = now
	updates["updated_at"] = now
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	order.Status = models.OrderStatusCancelled
	order.CancelReason = motive
	order.CancelledBy = &op.ID
	order.CancelledAt = &now
	order.UpdatedAt = now
	return nil
}

// lockOrder loads an order with its items, holding a row lock on engines
// that support it so concurrent settlements on one order serialise.
func lockOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
		return nil, notFoundOr(err, "order %d not found", orderID)
	}
	if err := tx.Where("order_id = ?", order.ID).Order("id").Find(&order.OrderItems).Error; err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return &order, nil
}

func (s *OrderService) notify(action string, order models.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.OrderChanged(action, order)
}
