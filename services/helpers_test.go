package services_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-dispatch/database"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
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

type recordedEvent struct {
	Action string
	Order  models.Order
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) OrderChanged(action string, order models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{Action: action, Order: order})
}

func (n *recordingNotifier) actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Action
	}
	return out
}

var (
	cashier   = models.Operator{ID: 1, Role: models.RoleCashier}
	cashier2  = models.Operator{ID: 2, Role: models.RoleCashier}
	waiter    = models.Operator{ID: 3, Role: models.RoleWaiter}
	bartender = models.Operator{ID: 4, Role: models.RoleBartender}
	admin     = models.Operator{ID: 5, Role: models.RoleAdmin}
	manager   = models.Operator{ID: 6, Role: models.RoleManager}
)

type fixture struct {
	db       *gorm.DB
	orders   *services.OrderService
	cash     *services.CashSessionStore
	registry *services.AssignmentRegistry
	notifier *recordingNotifier

	drinks  models.Category
	food    models.Category
	rum     models.Product
	lime    models.Product
	burger  models.Product
	session *models.CashSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:       db,
		cash:     services.NewCashSessionStore(db),
		registry: services.NewAssignmentRegistry(db),
		notifier: &recordingNotifier{},
	}
	f.orders = services.NewOrderService(db, services.NewGormCatalog(), services.NewInventoryLedger(), f.cash, f.notifier)

	f.drinks = models.Category{Name: "Drinks"}
	f.food = models.Category{Name: "Food"}
	require.NoError(t, db.Create(&f.drinks).Error)
	require.NoError(t, db.Create(&f.food).Error)

	f.rum = f.product(t, "Rum", f.drinks.ID, 10, 10)
	f.lime = f.product(t, "Lime", f.drinks.ID, 0, 50)
	f.burger = f.product(t, "Burger", f.food.ID, 25, 5)

	session, err := f.cash.OpenSession(cashier, 1, decimal.NewFromInt(100))
	require.NoError(t, err)
	f.session = session
	return f
}

func (f *fixture) product(t *testing.T, name string, categoryID uint, price int64, stock int) models.Product {
	t.Helper()
	p := models.Product{
		CategoryID: categoryID,
		Name:       name,
		Price:      decimal.NewFromInt(price),
		Stock:      stock,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) stockOf(t *testing.T, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.First(&p, id).Error)
	return p.Stock
}

func (f *fixture) movements(t *testing.T, orderID uint) []models.CashMovement {
	t.Helper()
	var ms []models.CashMovement
	require.NoError(t, f.db.Where("order_id = ?", orderID).Order("id").Find(&ms).Error)
	return ms
}

func (f *fixture) reload(t *testing.T, id uint) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.db.Preload("OrderItems").First(&o, id).Error)
	return o
}

// rumAndLime is two Rum with a Lime garnish hosted by the Rum line.
func (f *fixture) rumAndLime() services.CreateOrderInput {
	host := 0
	return services.CreateOrderInput{
		Notes: "table 4",
		Items: []services.CreateItemInput{
			{ProductID: &f.rum.ID, Quantity: 2},
			{ProductID: &f.lime.ID, Quantity: 1, IsComplement: true, ComplementKind: models.ComplementGarnish, HostIndex: &host},
		},
	}
}

func uintPtr(v uint) *uint { return &v }

func requireKind(t *testing.T, err error, kind services.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, services.KindOf(err), err.Error())
}
