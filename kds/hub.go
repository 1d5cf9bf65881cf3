package kds

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/services"
	"github.com/yeremiapane/order-dispatch/utils"
)

// Event types
const (
	EventOrderUpdate    = "order_update"
	EventBartenderOrder = "bartender_order_update"
	EventRoleDeclared   = "role_declared"
	EventPong           = "pong"
)

var (
	ErrTooManyClients = errors.New("too many connected operators")
	ErrHubClosed      = errors.New("event hub is closed")
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// OrderEvent is the unfiltered notification every connection receives.
type OrderEvent struct {
	Action string           `json:"action"`
	Order  models.OrderView `json:"order"`
}

// BartenderOrderEvent carries only the specialty items of an order. It is
// still sent with NoSpecialtyItems set when nothing matched.
type BartenderOrderEvent struct {
	Action           string             `json:"action"`
	OrderID          uint               `json:"order_id"`
	State            string             `json:"state"`
	Notes            string             `json:"notes"`
	CreatedBy        uint               `json:"created_by"`
	Items            []models.OrderItem `json:"items"`
	NoSpecialtyItems bool               `json:"no_specialty_items"`
}

// ViewResolver computes the bartender view of one order per viewer, keyed by
// operator id. Viewers carry their token role, not the declared one.
type ViewResolver interface {
	BartenderViews(order models.Order, viewers []models.Operator) (map[uint]services.BartenderView, error)
}

type Config struct {
	MaxClients        int
	SendBuffer        int
	MessagesPerSecond float64
	WriteTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxClients <= 0 {
		c.MaxClients = 200
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = 20
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

type registration struct {
	client *Client
	result chan error
}

type roleDeclaration struct {
	client *Client
	role   models.Role
}

// clientInfo is a copy of a connection's registry entry.
type clientInfo struct {
	client *Client
	role   models.Role
}

// Hub is the registry of connected operators. Only the Run goroutine reads
// or writes the clients map; everything else talks to it over channels.
type Hub struct {
	cfg      Config
	resolver ViewResolver

	register   chan registration
	unregister chan *Client
	declare    chan roleDeclaration
	list       chan chan []clientInfo
	done       chan struct{}

	clients map[string]*Client
	roles   map[string]models.Role
}

func NewHub(cfg Config, resolver ViewResolver) *Hub {
	return &Hub{
		cfg:        cfg.withDefaults(),
		resolver:   resolver,
		register:   make(chan registration),
		unregister: make(chan *Client),
		declare:    make(chan roleDeclaration),
		list:       make(chan chan []clientInfo),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		roles:      make(map[string]models.Role),
	}
}

// Run owns the registry until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case reg := <-h.register:
			reg.result <- h.upsert(reg.client)

		case c := <-h.unregister:
			if current, ok := h.clients[c.ID]; ok && current == c {
				h.remove(c)
			}

		case d := <-h.declare:
			if current, ok := h.clients[d.client.ID]; ok && current == d.client {
				h.roles[d.client.ID] = d.role
			}

		case reply := <-h.list:
			infos := make([]clientInfo, 0, len(h.clients))
			for id, c := range h.clients {
				infos = append(infos, clientInfo{client: c, role: h.roles[id]})
			}
			reply <- infos

		case <-ctx.Done():
			for _, c := range h.clients {
				h.remove(c)
			}
			return
		}
	}
}

// upsert evicts a stale connection of the same operator before registering.
func (h *Hub) upsert(c *Client) error {
	for _, existing := range h.clients {
		if existing.OperatorID == c.OperatorID {
			utils.InfoLogger.WithFields(logrus.Fields{
				"operator_id": c.OperatorID,
				"stale_conn":  existing.ID,
			}).Info("evicting stale connection")
			h.remove(existing)
		}
	}
	if len(h.clients) >= h.cfg.MaxClients {
		return ErrTooManyClients
	}
	h.clients[c.ID] = c
	h.roles[c.ID] = c.initialRole
	utils.InfoLogger.WithFields(logrus.Fields{
		"conn_id":     c.ID,
		"operator_id": c.OperatorID,
		"role":        c.initialRole,
		"clients":     len(h.clients),
	}).Info("operator connected")
	return nil
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c.ID)
	delete(h.roles, c.ID)
	c.close()
}

// Register adds c to the registry.
func (h *Hub) Register(c *Client) error {
	result := make(chan error, 1)
	select {
	case h.register <- registration{client: c, result: result}:
		return <-result
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// DeclareRole refreshes the role a connection is tagged with.
func (h *Hub) DeclareRole(c *Client, role models.Role) {
	select {
	case h.declare <- roleDeclaration{client: c, role: role}:
	case <-h.done:
	}
}

func (h *Hub) snapshot() []clientInfo {
	reply := make(chan []clientInfo, 1)
	select {
	case h.list <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	return len(h.snapshot())
}

// OrderChanged pushes a lifecycle event: the unfiltered event to every
// connection, then the category-filtered view to each bartender-tagged
// connection scoped to the order. An admin or manager tagged bartender is
// scoped like their bartender view over REST. Delivery problems are logged
// and never returned.
func (h *Hub) OrderChanged(action string, order models.Order) {
	clients := h.snapshot()
	if len(clients) == 0 {
		return
	}

	generic, err := json.Marshal(Message{
		Event: EventOrderUpdate,
		Data:  OrderEvent{Action: action, Order: order.View()},
	})
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("failed to marshal order event")
		return
	}

	viewers := make([]models.Operator, 0)
	for _, info := range clients {
		info.client.enqueue(generic)
		if info.role == models.RoleBartender {
			viewers = append(viewers, models.Operator{ID: info.client.OperatorID, Role: info.client.TokenRole})
		}
	}
	if len(viewers) == 0 || h.resolver == nil {
		return
	}

	views, err := h.resolver.BartenderViews(order, viewers)
	if err != nil {
		utils.ErrorLogger.WithError(err).WithField("order_id", order.ID).
			Error("failed to resolve bartender views")
		return
	}

	for _, info := range clients {
		if info.role != models.RoleBartender {
			continue
		}
		view, ok := views[info.client.OperatorID]
		if !ok || !view.Scoped {
			continue
		}
		items := view.Order.OrderItems
		if items == nil {
			items = []models.OrderItem{}
		}
		payload, err := json.Marshal(Message{
			Event: EventBartenderOrder,
			Data: BartenderOrderEvent{
				Action:           action,
				OrderID:          order.ID,
				State:            order.State(),
				Notes:            order.Notes,
				CreatedBy:        order.CreatedBy,
				Items:            items,
				NoSpecialtyItems: !view.HasSpecialtyItems,
			},
		})
		if err != nil {
			utils.ErrorLogger.WithError(err).Error("failed to marshal bartender event")
			continue
		}
		info.client.enqueue(payload)
	}
}
