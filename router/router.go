package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-dispatch/controllers"
	"github.com/yeremiapane/order-dispatch/kds"
	"github.com/yeremiapane/order-dispatch/middlewares"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/services"
	"gorm.io/gorm"
)

// Dependencies groups everything the HTTP surface needs.
type Dependencies struct {
	DB          *gorm.DB
	Secret      []byte
	RateLimit   int
	Orders      *services.OrderService
	Visibility  *services.VisibilityService
	Assignments *services.AssignmentRegistry
	Cash        *services.CashSessionStore
	Hub         *kds.Hub
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	if deps.RateLimit > 0 {
		r.Use(middlewares.NewRateLimiter(deps.RateLimit, deps.RateLimit).RateLimit())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	orderCtrl := controllers.NewOrderController(deps.Orders, deps.Visibility)
	assignmentCtrl := controllers.NewAssignmentController(deps.DB, deps.Assignments)
	cashCtrl := controllers.NewCashSessionController(deps.Cash)
	kdsCtrl := controllers.NewKDSController(deps.Hub)

	auth := middlewares.AuthMiddleware(deps.Secret)

	r.GET("/ws", auth, kdsCtrl.KDSHandler)

	api := r.Group("/api", auth)
	{
		orders := api.Group("/orders")
		{
			orders.POST("", orderCtrl.CreateOrder)
			orders.GET("", orderCtrl.GetVisibleOrders)
			orders.GET("/:order_id", orderCtrl.GetOrderByID)
			orders.PATCH("/:order_id/state", orderCtrl.UpdateOrderState)
			orders.POST("/:order_id/charge", orderCtrl.ChargeOrder)
			orders.POST("/:order_id/cancel", orderCtrl.CancelOrder)
			orders.POST("/:order_id/return", orderCtrl.ReturnOrder)
		}

		assignments := api.Group("/assignments",
			middlewares.RoleCheck(models.RoleAdmin, models.RoleManager, models.RoleCashier, models.RoleBartender))
		{
			assignments.POST("", assignmentCtrl.CreateAssignment)
			assignments.GET("", assignmentCtrl.GetActiveAssignments)
			assignments.DELETE("/:assignment_id", assignmentCtrl.DeactivateAssignment)
		}

		cash := api.Group("/cash-sessions",
			middlewares.RoleCheck(models.RoleAdmin, models.RoleManager, models.RoleCashier))
		{
			cash.POST("", cashCtrl.OpenSession)
			cash.GET("/open", cashCtrl.GetOpenSessions)
			cash.POST("/:session_id/close", cashCtrl.CloseSession)
			cash.POST("/:session_id/movements", cashCtrl.RecordMovement)
		}
	}

	return r
}
