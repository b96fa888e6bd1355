package workers

import (
	"context"
	"log/slog"
	"time"

	"gameroom-lab/contract"
	"gameroom-lab/domain/event"
)

const sinkTimeout = 2 * time.Second

// EventFanout delivers domain events to their audience. Permanent sinks
// (chat archive, search index) see every event; connection sinks are
// resolved per event through the registry, honoring the event's audience
// scope.
//
// Delivery is best-effort with no ordering or retry guarantees across
// sinks. A slow sink is cut off by the per-sink timeout, never the whole
// fanout.
type EventFanout struct {
	log      *slog.Logger
	events   chan event.DomainEvent
	registry contract.IRegistry
	sinks    []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events chan event.DomainEvent, registry contract.IRegistry) *EventFanout {
	return &EventFanout{log: log, events: events, registry: registry}
}

// Add registers permanent sinks that receive every event regardless of
// audience.
func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.fanout(ctx, evt)
		}
	}
}

func (w *EventFanout) fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		w.deliver(ctx, sink, evt)
	}

	var targets []contract.EventSink
	audience := evt.Audience()
	switch audience.Scope {
	case event.ScopeConnections:
		targets = w.registry.SinksForConnections(audience.Connections)
	default:
		targets = w.registry.SinksForRoom(evt.RoomCode())
	}
	for _, sink := range targets {
		w.deliver(ctx, sink, evt)
	}
}

func (w *EventFanout) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Warn("Sink rejected event", "event", evt.Type(), "room", evt.RoomCode(), "error", err)
	}
}
