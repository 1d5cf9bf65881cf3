package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/services"
	"github.com/yeremiapane/order-dispatch/utils"
)

type OrderController struct {
	Orders     *services.OrderService
	Visibility *services.VisibilityService
}

func NewOrderController(orders *services.OrderService, visibility *services.VisibilityService) *OrderController {
	return &OrderController{Orders: orders, Visibility: visibility}
}

// GetVisibleOrders -> orders the caller may see, filtered per role
func (oc *OrderController) GetVisibleOrders(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}

	orders, err := oc.Visibility.ListVisible(services.Viewer{
		Operator:         op,
		IncludeDelivered: queryBool(c, "include_delivered"),
		BartenderView:    queryBool(c, "bartender_view"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	views := make([]models.OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, order.View())
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", views)
}

// GetOrderByID -> detail 1 order, 404 when outside the caller's scope
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "order_id")
	if !ok {
		return
	}

	order, err := oc.Visibility.GetVisible(services.Viewer{
		Operator:      op,
		BartenderView: queryBool(c, "bartender_view"),
	}, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order.View())
}

func (oc *OrderController) CreateOrder(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}

	var body services.CreateOrderInput
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.CreateOrder(op, body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

// UpdateOrderState -> advance along the preparation axis
func (oc *OrderController) UpdateOrderState(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "order_id")
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.AdvanceState(op, id, body.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, fmt.Sprintf("Order moved to %s", body.Status), order)
}

func (oc *OrderController) ChargeOrder(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "order_id")
	if !ok {
		return
	}

	var body services.ChargeInput
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := oc.Orders.Charge(op, id, body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order charged", result)
}

func (oc *OrderController) CancelOrder(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "order_id")
	if !ok {
		return
	}

	var body services.CancelInput
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := oc.Orders.Cancel(op, id, body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", result)
}

func (oc *OrderController) ReturnOrder(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "order_id")
	if !ok {
		return
	}

	var body services.ReturnInput
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := oc.Orders.Return(op, id, body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order returned", result)
}
