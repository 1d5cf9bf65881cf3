package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/order-dispatch/services"
	"github.com/yeremiapane/order-dispatch/utils"
)

type CashSessionController struct {
	Store *services.CashSessionStore
}

func NewCashSessionController(store *services.CashSessionStore) *CashSessionController {
	return &CashSessionController{Store: store}
}

func (cc *CashSessionController) OpenSession(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}

	var body struct {
		BranchID       uint            `json:"branch_id"`
		OpeningBalance decimal.Decimal `json:"opening_balance"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	session, err := cc.Store.OpenSession(op, body.BranchID, body.OpeningBalance)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Cash session opened", session)
}

func (cc *CashSessionController) CloseSession(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "session_id")
	if !ok {
		return
	}

	session, err := cc.Store.CloseSession(op, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cash session closed", session)
}

// RecordMovement -> manual INCOME / EXPENSE on an open register
func (cc *CashSessionController) RecordMovement(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "session_id")
	if !ok {
		return
	}

	var body struct {
		Kind          string          `json:"kind" binding:"required"`
		Amount        decimal.Decimal `json:"amount"`
		PaymentMethod string          `json:"payment_method"`
		Description   string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	movement, err := cc.Store.RecordManualMovement(op, id, body.Kind, body.Amount, body.PaymentMethod, body.Description)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Movement recorded", movement)
}

func (cc *CashSessionController) GetOpenSessions(c *gin.Context) {
	sessions, err := cc.Store.OpenSessions()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Open cash sessions", sessions)
}
