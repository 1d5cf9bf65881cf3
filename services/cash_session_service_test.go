package services_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/services"
)

func TestOpenSessionRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.cash.OpenSession(cashier, 1, decimal.Zero)
	requireKind(t, err, services.KindPreconditionFailed)

	_, err = f.cash.OpenSession(waiter, 1, decimal.Zero)
	requireKind(t, err, services.KindForbidden)

	_, err = f.cash.OpenSession(cashier2, 1, decimal.NewFromInt(-1))
	requireKind(t, err, services.KindValidation)

	open, err := f.cash.GetOpenSession(f.db, services.SessionFilter{CashierID: cashier.ID})
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, f.session.ID, open.ID)

	none, err := f.cash.GetOpenSession(f.db, services.SessionFilter{CashierID: cashier2.ID})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestManualMovementsAndClose(t *testing.T) {
	f := newFixture(t)

	income, err := f.cash.RecordManualMovement(cashier, f.session.ID, models.CashMovementIncome, decimal.NewFromInt(30), "", "float top-up")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodCash, income.PaymentMethod)

	expense, err := f.cash.RecordManualMovement(cashier, f.session.ID, models.CashMovementExpense, decimal.NewFromInt(12), "cash", "ice")
	require.NoError(t, err)
	assert.Equal(t, "-12.00", expense.Amount.StringFixed(2))

	_, err = f.cash.RecordManualMovement(cashier, f.session.ID, models.CashMovementSale, decimal.NewFromInt(1), "cash", "")
	requireKind(t, err, services.KindValidation)

	_, err = f.cash.RecordManualMovement(cashier2, f.session.ID, models.CashMovementIncome, decimal.NewFromInt(1), "cash", "")
	requireKind(t, err, services.KindForbidden)

	_, err = f.cash.CloseSession(cashier2, f.session.ID)
	requireKind(t, err, services.KindForbidden)

	closed, err := f.cash.CloseSession(cashier, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CashSessionClosed, closed.Status)
	require.NotNil(t, closed.ClosingBalance)
	assert.Equal(t, "118.00", closed.ClosingBalance.StringFixed(2))

	_, err = f.cash.CloseSession(admin, f.session.ID)
	requireKind(t, err, services.KindPreconditionFailed)

	_, err = f.cash.RecordManualMovement(admin, f.session.ID, models.CashMovementIncome, decimal.NewFromInt(1), "cash", "")
	requireKind(t, err, services.KindPreconditionFailed)

	sessions, err := f.cash.OpenSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestInventoryLedgerRejectsNegativeStock(t *testing.T) {
	f := newFixture(t)
	ledger := services.NewInventoryLedger()

	_, err := ledger.ApplyDelta(f.db, services.StockDelta{ProductID: f.burger.ID, Quantity: -6, Kind: models.InventoryMovementOut, Reason: "waste"})
	requireKind(t, err, services.KindPreconditionFailed)
	assert.Equal(t, 5, f.stockOf(t, f.burger.ID))

	m, err := ledger.ApplyDelta(f.db, services.StockDelta{ProductID: f.burger.ID, Quantity: 3, Kind: models.InventoryMovementIn, Reason: "delivery"})
	require.NoError(t, err)
	assert.Equal(t, 5, m.StockBefore)
	assert.Equal(t, 8, m.StockAfter)

	_, err = ledger.ApplyDelta(f.db, services.StockDelta{ProductID: 404, Quantity: 1, Kind: models.InventoryMovementIn})
	requireKind(t, err, services.KindNotFound)

	log, err := ledger.Movements(f.db, f.burger.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "delivery", log[0].Reason)
}
