package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/order-dispatch/kds"
	"github.com/yeremiapane/order-dispatch/utils"
)

// RoleHeader lets an admin or manager console act as another role.
const RoleHeader = "X-Operator-Role"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type KDSController struct {
	Hub *kds.Hub
}

func NewKDSController(hub *kds.Hub) *KDSController {
	return &KDSController{Hub: hub}
}

// KDSHandler -> endpoint WebSocket
func (kc *KDSController) KDSHandler(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		return
	}

	declared := c.GetHeader(RoleHeader)
	if declared == "" {
		declared = c.Query("role")
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := kds.NewClient(kc.Hub, ws, op.ID, op.Role, declared)
	if err := kc.Hub.Register(client); err != nil {
		reason := "server unavailable"
		if errors.Is(err, kds.ErrTooManyClients) {
			reason = err.Error()
		}
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason))
		ws.Close()
		return
	}

	go client.WritePump()
	client.ReadPump()
}
