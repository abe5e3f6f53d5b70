package push

import (
	"context"
	"log/slog"

	"github.com/kazz187/chatbridge/internal/eventbus"
)

// Dispatcher turns bus events that need an operator's attention into web
// pushes.
type Dispatcher struct {
	bus    *eventbus.Bus
	sender *Sender
}

func NewDispatcher(bus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{bus: bus, sender: sender}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.bus.Subscribe(256)
	defer d.bus.Unsubscribe(subID)

	slog.Info("push dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *eventbus.Event) {
	var title string
	switch event.Type {
	case eventbus.EventNotification:
		title = "Agent needs attention"
	case eventbus.EventTurnErrored:
		title = "Agent error"
	default:
		return
	}
	d.sender.SendToAll(ctx, &NotificationPayload{
		Title: title,
		Body:  event.Project + ": " + event.Payload,
		Tag:   event.Project + "/" + event.Instance,
	})
}
