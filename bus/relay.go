package bus

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-dispatch/models"
	"github.com/yeremiapane/order-dispatch/utils"
)

// Sink delivers one encoded event to a broker.
type Sink interface {
	Publish(ctx context.Context, event LifecycleEvent) error
	Close() error
}

// Relay forwards lifecycle events to a Sink from a single worker so broker
// latency never reaches the request path. Events are dropped when the
// queue is full.
type Relay struct {
	sink    Sink
	queue   chan LifecycleEvent
	timeout time.Duration
	done    chan struct{}
}

func NewRelay(sink Sink, buffer int) *Relay {
	if buffer <= 0 {
		buffer = 256
	}
	return &Relay{
		sink:    sink,
		queue:   make(chan LifecycleEvent, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// OrderChanged enqueues the event without blocking.
func (r *Relay) OrderChanged(action string, order models.Order) {
	event := NewLifecycleEvent(action, order)
	select {
	case r.queue <- event:
	default:
		utils.ErrorLogger.WithFields(logrus.Fields{
			"order_id": order.ID,
			"action":   action,
		}).Warn("event relay queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is
// left and closes the sink.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)
	defer func() {
		if err := r.sink.Close(); err != nil {
			utils.ErrorLogger.WithError(err).Warn("failed to close event sink")
		}
	}()

	for {
		select {
		case event := <-r.queue:
			r.publish(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-r.queue:
					r.publish(event)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) publish(event LifecycleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Publish(ctx, event); err != nil {
		utils.ErrorLogger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.ID,
			"order_id": event.OrderID,
			"action":   event.Action,
		}).Error("failed to publish lifecycle event")
		return
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"order_id": event.OrderID,
		"action":   event.Action,
	}).Debug("lifecycle event published")
}
