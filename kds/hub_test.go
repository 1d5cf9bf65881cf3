package kds_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-dispatch/database"
	"github.com/yeremiapane/order-dispatch/kds"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeConn struct {
	mu        sync.Mutex
	written   [][]byte
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	block     chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbound:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-f.closed:
			return errors.New("connection closed")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) events() []kds.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kds.Message, 0, len(f.written))
	for _, raw := range f.written {
		var msg kds.Message
		if err := json.Unmarshal(raw, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeConn) countEvent(event string) int {
	n := 0
	for _, msg := range f.events() {
		if msg.Event == event {
			n++
		}
	}
	return n
}

type staticResolver struct {
	views map[uint]services.BartenderView

	mu   sync.Mutex
	seen []models.Operator
}

func (r *staticResolver) BartenderViews(order models.Order, viewers []models.Operator) (map[uint]services.BartenderView, error) {
	r.mu.Lock()
	r.seen = append(r.seen, viewers...)
	r.mu.Unlock()

	out := make(map[uint]services.BartenderView)
	for _, viewer := range viewers {
		if v, ok := r.views[viewer.ID]; ok {
			out[viewer.ID] = v
		}
	}
	return out, nil
}

func (r *staticResolver) viewers() []models.Operator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Operator(nil), r.seen...)
}

func startHub(t *testing.T, cfg kds.Config, resolver kds.ViewResolver) *kds.Hub {
	hub := kds.NewHub(cfg, resolver)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(t *testing.T, hub *kds.Hub, operatorID uint, role models.Role, declared string) (*kds.Client, *fakeConn) {
	conn := newFakeConn()
	client := kds.NewClient(hub, conn, operatorID, role, declared)
	require.NoError(t, hub.Register(client))
	go client.WritePump()
	go client.ReadPump()
	return client, conn
}

func sampleOrder() models.Order {
	return models.Order{
		ID:            5,
		CreatedBy:     10,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
		OrderItems: []models.OrderItem{
			{ID: 1, Name: "Rum", CategoryName: "Drinks", Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
			{ID: 2, Name: "Burger", CategoryName: "Food", Quantity: 1, UnitPrice: decimal.NewFromInt(80)},
		},
	}
}

func TestResolveRole(t *testing.T) {
	assert.Equal(t, models.RoleWaiter, kds.ResolveRole(models.RoleWaiter, "bartender"))
	assert.Equal(t, models.RoleBartender, kds.ResolveRole(models.RoleBartender, "bartender"))
	assert.Equal(t, models.RoleBartender, kds.ResolveRole(models.RoleAdmin, "bartender"))
	assert.Equal(t, models.RoleBartender, kds.ResolveRole(models.RoleManager, "BARTENDER"))
	assert.Equal(t, models.RoleCashier, kds.ResolveRole(models.RoleCashier, ""))
	assert.Equal(t, models.RoleCashier, kds.ResolveRole(models.RoleCashier, "chef"))
}

func TestHubEvictsDuplicateIdentity(t *testing.T) {
	hub := startHub(t, kds.Config{}, nil)

	_, first := connect(t, hub, 1, models.RoleWaiter, "")
	_, second := connect(t, hub, 1, models.RoleWaiter, "")

	assert.Equal(t, 1, hub.Count())
	assert.Eventually(t, first.isClosed, time.Second, 10*time.Millisecond)
	assert.False(t, second.isClosed())
}

func TestHubRejectsBeyondCapacity(t *testing.T) {
	hub := startHub(t, kds.Config{MaxClients: 1}, nil)

	connect(t, hub, 1, models.RoleWaiter, "")

	extra := kds.NewClient(hub, newFakeConn(), 2, models.RoleCashier, "")
	assert.ErrorIs(t, hub.Register(extra), kds.ErrTooManyClients)
	assert.Equal(t, 1, hub.Count())

	// the same identity reconnecting replaces itself and is not refused
	connect(t, hub, 1, models.RoleWaiter, "")
	assert.Equal(t, 1, hub.Count())
}

func TestOrderChangedFansOutGenericAndFilteredEvents(t *testing.T) {
	order := sampleOrder()
	drinksOnly := order
	drinksOnly.OrderItems = order.OrderItems[:1]
	noDrinks := order
	noDrinks.OrderItems = nil

	resolver := &staticResolver{views: map[uint]services.BartenderView{
		20: {Scoped: true, Order: drinksOnly, HasSpecialtyItems: true},
		21: {Scoped: false},
		22: {Scoped: true, Order: noDrinks, HasSpecialtyItems: false},
	}}
	hub := startHub(t, kds.Config{}, resolver)

	_, waiter := connect(t, hub, 10, models.RoleWaiter, "")
	_, scoped := connect(t, hub, 20, models.RoleBartender, "")
	_, unassigned := connect(t, hub, 21, models.RoleBartender, "")
	_, empty := connect(t, hub, 22, models.RoleBartender, "")

	hub.OrderChanged(services.ActionCreated, order)

	for _, conn := range []*fakeConn{waiter, scoped, unassigned, empty} {
		conn := conn
		assert.Eventually(t, func() bool { return conn.countEvent(kds.EventOrderUpdate) == 1 }, time.Second, 10*time.Millisecond)
	}
	assert.Eventually(t, func() bool { return scoped.countEvent(kds.EventBartenderOrder) == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return empty.countEvent(kds.EventBartenderOrder) == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, waiter.countEvent(kds.EventBartenderOrder))
	assert.Equal(t, 0, unassigned.countEvent(kds.EventBartenderOrder))

	var payload kds.BartenderOrderEvent
	for _, msg := range scoped.events() {
		if msg.Event == kds.EventBartenderOrder {
			raw, _ := json.Marshal(msg.Data)
			require.NoError(t, json.Unmarshal(raw, &payload))
		}
	}
	assert.Equal(t, uint(5), payload.OrderID)
	assert.False(t, payload.NoSpecialtyItems)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "Rum", payload.Items[0].Name)

	for _, msg := range empty.events() {
		if msg.Event == kds.EventBartenderOrder {
			raw, _ := json.Marshal(msg.Data)
			require.NoError(t, json.Unmarshal(raw, &payload))
		}
	}
	assert.True(t, payload.NoSpecialtyItems)
	assert.Empty(t, payload.Items)
}

func TestSlowConsumerDoesNotBlockOthers(t *testing.T) {
	// room for the whole burst, so only the blocked connection can overflow
	hub := startHub(t, kds.Config{SendBuffer: 8}, nil)

	slowConn := newFakeConn()
	slowConn.block = make(chan struct{})
	slow := kds.NewClient(hub, slowConn, 1, models.RoleCashier, "")
	require.NoError(t, hub.Register(slow))
	go slow.WritePump()

	_, fast := connect(t, hub, 2, models.RoleCashier, "")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.OrderChanged(services.ActionStateChanged, sampleOrder())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fanout blocked on a slow connection")
	}
	assert.Eventually(t, func() bool { return fast.countEvent(kds.EventOrderUpdate) == 5 }, time.Second, 10*time.Millisecond)
	close(slowConn.block)
}

func TestReadPumpAnswersPingAndDeclaresRole(t *testing.T) {
	resolver := &staticResolver{views: map[uint]services.BartenderView{
		1: {Scoped: true, Order: sampleOrder(), HasSpecialtyItems: true},
		2: {Scoped: true, Order: sampleOrder(), HasSpecialtyItems: true},
	}}
	hub := startHub(t, kds.Config{}, resolver)

	_, admin := connect(t, hub, 1, models.RoleAdmin, "")
	_, waiter := connect(t, hub, 2, models.RoleWaiter, "")

	admin.inbound <- []byte(`{"type":"ping"}`)
	assert.Eventually(t, func() bool { return admin.countEvent(kds.EventPong) == 1 }, time.Second, 10*time.Millisecond)

	admin.inbound <- []byte(`{"type":"declare_role","role":"bartender"}`)
	waiter.inbound <- []byte(`{"type":"declare_role","role":"bartender"}`)
	assert.Eventually(t, func() bool {
		return admin.countEvent(kds.EventRoleDeclared) == 1 && waiter.countEvent(kds.EventRoleDeclared) == 1
	}, time.Second, 10*time.Millisecond)

	hub.OrderChanged(services.ActionCreated, sampleOrder())

	assert.Eventually(t, func() bool { return admin.countEvent(kds.EventBartenderOrder) == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return waiter.countEvent(kds.EventOrderUpdate) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, waiter.countEvent(kds.EventBartenderOrder))

	// the resolver sees the token role, not the declared one
	assert.Equal(t, []models.Operator{{ID: 1, Role: models.RoleAdmin}}, resolver.viewers())
}

func TestClosedConnectionUnregisters(t *testing.T) {
	hub := startHub(t, kds.Config{}, nil)

	_, conn := connect(t, hub, 3, models.RoleCashier, "")
	require.Equal(t, 1, hub.Count())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func setupStore(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestAdminBartenderConsoleMatchesListView(t *testing.T) {
	db := setupStore(t)
	drinks := models.Category{Name: "Drinks"}
	food := models.Category{Name: "Food"}
	require.NoError(t, db.Create(&drinks).Error)
	require.NoError(t, db.Create(&food).Error)

	order := models.Order{
		CreatedBy:     10,
		CreatorRole:   models.RoleWaiter,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
		OrderItems: []models.OrderItem{
			{Name: "Rum", CategoryID: &drinks.ID, CategoryName: "Drinks", Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
			{Name: "Burger", CategoryID: &food.ID, CategoryName: "Food", Quantity: 1, UnitPrice: decimal.NewFromInt(80)},
		},
	}
	require.NoError(t, db.Create(&order).Error)

	visibility := services.NewVisibilityService(db, services.NewGormCatalog(), services.NewAssignmentRegistry(db), "Drinks")
	admin := models.Operator{ID: 1, Role: models.RoleAdmin}
	listed, err := visibility.ListVisible(services.Viewer{Operator: admin, BartenderView: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	hub := startHub(t, kds.Config{}, visibility)
	_, console := connect(t, hub, admin.ID, admin.Role, "bartender")
	_, idle := connect(t, hub, 2, models.RoleBartender, "")

	hub.OrderChanged(services.ActionCreated, order)

	assert.Eventually(t, func() bool { return console.countEvent(kds.EventBartenderOrder) == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return idle.countEvent(kds.EventOrderUpdate) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, idle.countEvent(kds.EventBartenderOrder))

	var payload kds.BartenderOrderEvent
	for _, msg := range console.events() {
		if msg.Event == kds.EventBartenderOrder {
			raw, _ := json.Marshal(msg.Data)
			require.NoError(t, json.Unmarshal(raw, &payload))
		}
	}
	assert.Equal(t, order.ID, payload.OrderID)
	assert.False(t, payload.NoSpecialtyItems)
	require.Len(t, payload.Items, len(listed[0].OrderItems))
	assert.Equal(t, "Rum", payload.Items[0].Name)
}
