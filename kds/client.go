package kds

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
	"golang.org/x/time/rate"
)

// Conn is the part of *websocket.Conn the hub relies on.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Inbound message types.
const (
	MessageDeclareRole = "declare_role"
	MessagePing        = "ping"
)

type inbound struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

// Client is one operator connection. Its outgoing messages go through a
// bounded queue drained by WritePump, so a slow consumer only loses its own
// messages.
type Client struct {
	ID         string
	OperatorID uint
	TokenRole  models.Role

	hub         *Hub
	conn        Conn
	send        chan []byte
	initialRole models.Role
	limiter     *rate.Limiter

	mu        sync.Mutex
	closed    bool
	closeConn sync.Once
	lastWarn  time.Time
}

func NewClient(hub *Hub, conn Conn, operatorID uint, tokenRole models.Role, declared string) *Client {
	perSecond := hub.cfg.MessagesPerSecond
	return &Client{
		ID:          uuid.NewString(),
		OperatorID:  operatorID,
		TokenRole:   tokenRole,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, hub.cfg.SendBuffer),
		initialRole: ResolveRole(tokenRole, declared),
		limiter:     rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
	}
}

// ResolveRole picks the role a connection is tagged with. A declared role is
// honoured when it matches the token role or the token belongs to an admin or
// manager; otherwise the token role wins.
func ResolveRole(tokenRole models.Role, declared string) models.Role {
	role, ok := models.ParseRole(declared)
	if !ok {
		return tokenRole
	}
	if role == tokenRole || tokenRole.In(models.RoleAdmin, models.RoleManager) {
		return role
	}
	return tokenRole
}

// enqueue never blocks; a full queue drops the message.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		utils.ErrorLogger.WithFields(logrus.Fields{
			"conn_id":     c.ID,
			"operator_id": c.OperatorID,
		}).Warn("send queue full, dropping message")
		return false
	}
}

// close ends the write pump. Called only by the hub.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) closeConnection() {
	c.closeConn.Do(func() {
		_ = c.conn.Close()
	})
}

// WritePump drains the send queue into the connection.
func (c *Client) WritePump() {
	defer c.closeConnection()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			utils.ErrorLogger.WithError(err).WithFields(logrus.Fields{
				"conn_id":     c.ID,
				"operator_id": c.OperatorID,
			}).Warn("failed to write to connection")
			c.hub.Unregister(c)
			return
		}
	}
}

// ReadPump handles role declarations and pings until the connection fails,
// then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.trackRate()

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch strings.ToLower(msg.Type) {
		case MessagePing:
			c.reply(EventPong, map[string]interface{}{"time": time.Now().UTC()})
		case MessageDeclareRole:
			role := ResolveRole(c.TokenRole, msg.Role)
			c.hub.DeclareRole(c, role)
			c.reply(EventRoleDeclared, map[string]interface{}{"role": role})
		}
	}
}

// trackRate logs suspected message loops; the connection stays open.
func (c *Client) trackRate() {
	if c.limiter.Allow() {
		return
	}
	if now := time.Now(); now.Sub(c.lastWarn) > time.Second {
		c.lastWarn = now
		utils.ErrorLogger.WithFields(logrus.Fields{
			"conn_id":     c.ID,
			"operator_id": c.OperatorID,
		}).Warn("connection exceeds message rate, possible client loop")
	}
}

func (c *Client) reply(event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return
	}
	c.enqueue(payload)
}
