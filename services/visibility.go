package services

import (
	"fmt"
	"strings"

	"github.com/yeremiapane/order-dispatch/models"
	"gorm.io/gorm"
)

// Viewer is the operator asking for orders plus their query flags.
type Viewer struct {
	Operator         models.Operator
	IncludeDelivered bool
	// BartenderView applies the specialty item filter for admins and managers.
	BartenderView bool
}

// Specialty identifies the category that scopes the bartender item view.
// ID is nil when the category could not be resolved in the catalog; matching
// then degrades to a case-insensitive substring test on Name.
type Specialty struct {
	ID   *uint
	Name string
}

// Snapshot is the immutable input of the resolver. It is built per request
// or per notification and never cached.
type Snapshot struct {
	Orders         []models.Order
	Assignments    []models.WorkAssignment
	Sessions       map[uint]models.CashSession
	OrderRegisters map[uint][]uint
	Specialty      Specialty
}

// Scope is the set of orders an operator may observe.
type Scope struct {
	All           bool
	Creators      map[uint]bool
	Registers     map[uint]bool
	SpecialtyOnly bool
}

// Includes reports whether order falls inside the scope. registers are the
// sessions holding a movement of the order.
func (s Scope) Includes(order models.Order, registers []uint) bool {
	if s.All {
		return true
	}
	if s.Creators[order.CreatedBy] {
		return true
	}
	for _, reg := range registers {
		if s.Registers[reg] {
			return true
		}
	}
	return false
}

// Empty is true when nothing can ever match.
func (s Scope) Empty() bool {
	return !s.All && len(s.Creators) == 0 && len(s.Registers) == 0
}

// ScopeFor computes the visibility scope of v from snap.
func ScopeFor(snap Snapshot, v Viewer) Scope {
	op := v.Operator
	switch op.Role {
	case models.RoleWaiter:
		return Scope{Creators: map[uint]bool{op.ID: true}}

	case models.RoleCashier:
		register := openRegisterOf(snap, op.ID)
		if register == nil {
			// no open register: degraded, admin-like visibility
			return Scope{All: true}
		}
		scope := Scope{
			Creators:  map[uint]bool{op.ID: true},
			Registers: map[uint]bool{register.ID: true},
		}
		for _, a := range snap.Assignments {
			if a.Active && a.CashSessionID != nil && *a.CashSessionID == register.ID && a.WaiterID != nil {
				scope.Creators[*a.WaiterID] = true
			}
		}
		return scope

	case models.RoleBartender:
		scope := Scope{
			Creators:      map[uint]bool{},
			Registers:     map[uint]bool{},
			SpecialtyOnly: true,
		}
		for _, a := range snap.Assignments {
			if !a.Active || a.BartenderID != op.ID {
				continue
			}
			if a.WaiterID != nil {
				scope.Creators[*a.WaiterID] = true
			}
			if a.CashSessionID != nil {
				scope.Registers[*a.CashSessionID] = true
				if session, ok := snap.Sessions[*a.CashSessionID]; ok {
					scope.Creators[session.CashierID] = true
				}
			}
		}
		return scope

	case models.RoleAdmin, models.RoleManager:
		return Scope{All: true, SpecialtyOnly: v.BartenderView}
	}
	return Scope{}
}

// ResolveVisible returns the orders v may see. Bartender-style views narrow
// each order to specialty items and drop orders left without any.
func ResolveVisible(snap Snapshot, v Viewer) []models.Order {
	scope := ScopeFor(snap, v)
	if scope.Empty() {
		return []models.Order{}
	}

	visible := make([]models.Order, 0, len(snap.Orders))
	for _, order := range snap.Orders {
		if !v.IncludeDelivered && order.Status == models.OrderStatusDelivered {
			continue
		}
		if !scope.Includes(order, snap.OrderRegisters[order.ID]) {
			continue
		}
		if scope.SpecialtyOnly {
			items := FilterSpecialtyItems(order.OrderItems, snap.Specialty)
			if len(items) == 0 {
				continue
			}
			order.OrderItems = items
		}
		visible = append(visible, order)
	}
	return visible
}

// FilterSpecialtyItems keeps items of the specialty category together with
// the complements hosted by them.
func FilterSpecialtyItems(items []models.OrderItem, specialty Specialty) []models.OrderItem {
	kept := make(map[uint]bool, len(items))
	for _, item := range items {
		if matchesSpecialty(item, specialty) {
			kept[item.ID] = true
		}
	}

	filtered := make([]models.OrderItem, 0, len(kept))
	for _, item := range items {
		if kept[item.ID] || (item.IsComplement && item.HostItemID != nil && kept[*item.HostItemID]) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func matchesSpecialty(item models.OrderItem, specialty Specialty) bool {
	if specialty.ID != nil {
		return item.CategoryID != nil && *item.CategoryID == *specialty.ID
	}
	if specialty.Name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(item.CategoryName), strings.ToLower(specialty.Name))
}

func openRegisterOf(snap Snapshot, cashierID uint) *models.CashSession {
	var newest *models.CashSession
	for id := range snap.Sessions {
		session := snap.Sessions[id]
		if session.CashierID != cashierID || !session.IsOpen() {
			continue
		}
		if newest == nil || session.OpenedAt.After(newest.OpenedAt) ||
			(session.OpenedAt.Equal(newest.OpenedAt) && session.ID > newest.ID) {
			s := session
			newest = &s
		}
	}
	return newest
}

// BartenderView is what one bartender-tagged connection receives for one order.
type BartenderView struct {
	// Scoped is false when the order is outside the viewer's scope, e.g. a
	// bartender without an active assignment.
	Scoped            bool
	Order             models.Order
	HasSpecialtyItems bool
}

// ResolveBartenderView computes the filtered view of a single order. A
// bartender is scoped by assignments; admins and managers see every order.
func ResolveBartenderView(snap Snapshot, viewer models.Operator, order models.Order) BartenderView {
	if !viewer.Role.In(models.RoleBartender, models.RoleAdmin, models.RoleManager) {
		return BartenderView{}
	}
	scope := ScopeFor(snap, Viewer{Operator: viewer, BartenderView: true})
	if scope.Empty() || !scope.Includes(order, snap.OrderRegisters[order.ID]) {
		return BartenderView{}
	}
	order.OrderItems = FilterSpecialtyItems(order.OrderItems, snap.Specialty)
	return BartenderView{
		Scoped:            true,
		Order:             order,
		HasSpecialtyItems: len(order.OrderItems) > 0,
	}
}

// VisibilityService loads snapshots from the store and runs the resolver.
type VisibilityService struct {
	db            *gorm.DB
	catalog       Catalog
	registry      *AssignmentRegistry
	specialtyName string
}

func NewVisibilityService(db *gorm.DB, catalog Catalog, registry *AssignmentRegistry, specialtyName string) *VisibilityService {
	return &VisibilityService{db: db, catalog: catalog, registry: registry, specialtyName: specialtyName}
}

// ListVisible answers "which orders may this operator see right now".
func (s *VisibilityService) ListVisible(v Viewer) ([]models.Order, error) {
	var snap Snapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Preload("OrderItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).Order("id")
		if v.Operator.Role == models.RoleWaiter {
			q = q.Where("created_by = ?", v.Operator.ID)
		}
		if !v.IncludeDelivered {
			q = q.Where("status <> ?", models.OrderStatusDelivered)
		}
		var orders []models.Order
		if err := q.Find(&orders).Error; err != nil {
			return fmt.Errorf("failed to load orders: %w", err)
		}

		var err error
		snap, err = s.loadSnapshot(tx, orders, []models.Operator{v.Operator})
		return err
	})
	if err != nil {
		return nil, err
	}
	return ResolveVisible(snap, v), nil
}

// GetVisible returns one order if the viewer may see it.
func (s *VisibilityService) GetVisible(v Viewer, orderID uint) (*models.Order, error) {
	var snap Snapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Preload("OrderItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
			First(&order, orderID).Error; err != nil {
			return notFoundOr(err, "order %d not found", orderID)
		}
		var err error
		snap, err = s.loadSnapshot(tx, []models.Order{order}, []models.Operator{v.Operator})
		return err
	})
	if err != nil {
		return nil, err
	}

	v.IncludeDelivered = true
	visible := ResolveVisible(snap, v)
	if len(visible) == 0 {
		return nil, NotFound("order %d not found", orderID)
	}
	return &visible[0], nil
}

// BartenderViews implements the per-connection filter used by the fanout.
// Views are keyed by operator id.
func (s *VisibilityService) BartenderViews(order models.Order, viewers []models.Operator) (map[uint]BartenderView, error) {
	views := make(map[uint]BartenderView, len(viewers))
	if len(viewers) == 0 {
		return views, nil
	}

	var snap Snapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		snap, err = s.loadSnapshot(tx, []models.Order{order}, viewers)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, viewer := range viewers {
		views[viewer.ID] = ResolveBartenderView(snap, viewer, order)
	}
	return views, nil
}

// loadSnapshot reads everything the resolver needs for viewers in one read
// transaction. Assignments come from the registry: a bartender's own rows,
// and for a cashier the rows of each of their open registers.
func (s *VisibilityService) loadSnapshot(tx *gorm.DB, orders []models.Order, viewers []models.Operator) (Snapshot, error) {
	snap := Snapshot{
		Orders:         orders,
		Sessions:       map[uint]models.CashSession{},
		OrderRegisters: map[uint][]uint{},
	}

	var open []models.CashSession
	if err := tx.Where("status = ?", models.CashSessionOpen).Order("id").Find(&open).Error; err != nil {
		return snap, fmt.Errorf("failed to load cash sessions: %w", err)
	}
	for _, session := range open {
		snap.Sessions[session.ID] = session
	}

	seen := map[uint]bool{}
	collect := func(assignments []models.WorkAssignment) {
		for _, a := range assignments {
			if !seen[a.ID] {
				seen[a.ID] = true
				snap.Assignments = append(snap.Assignments, a)
			}
		}
	}
	for _, viewer := range viewers {
		switch viewer.Role {
		case models.RoleBartender:
			assignments, err := s.registry.ActiveForBartender(tx, viewer.ID)
			if err != nil {
				return snap, err
			}
			collect(assignments)
		case models.RoleCashier:
			for _, session := range open {
				if session.CashierID != viewer.ID {
					continue
				}
				assignments, err := s.registry.ActiveForRegister(tx, session.ID)
				if err != nil {
					return snap, err
				}
				collect(assignments)
			}
		}
	}

	// registers named by an assignment but already closed
	missing := make([]uint, 0)
	for _, a := range snap.Assignments {
		if a.CashSessionID != nil {
			if _, ok := snap.Sessions[*a.CashSessionID]; !ok {
				missing = append(missing, *a.CashSessionID)
			}
		}
	}
	if len(missing) > 0 {
		var closed []models.CashSession
		if err := tx.Where("id IN ?", missing).Find(&closed).Error; err != nil {
			return snap, fmt.Errorf("failed to load cash sessions: %w", err)
		}
		for _, session := range closed {
			snap.Sessions[session.ID] = session
		}
	}

	if len(orders) > 0 {
		orderIDs := make([]uint, len(orders))
		for i, o := range orders {
			orderIDs[i] = o.ID
		}
		var movements []models.CashMovement
		if err := tx.Select("order_id", "cash_session_id").
			Where("order_id IN ?", orderIDs).Find(&movements).Error; err != nil {
			return snap, fmt.Errorf("failed to load cash movements: %w", err)
		}
		for _, m := range movements {
			if m.OrderID != nil {
				snap.OrderRegisters[*m.OrderID] = append(snap.OrderRegisters[*m.OrderID], m.CashSessionID)
			}
		}
	}

	snap.Specialty = Specialty{Name: s.specialtyName}
	category, err := s.catalog.CategoryByName(tx, s.specialtyName)
	switch {
	case err == nil:
		snap.Specialty.ID = &category.ID
	case KindOf(err) != KindNotFound:
		return snap, err
	}
	return snap, nil
}
