package workers

import (
	"chat-relay/bus"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// RoomListener bridges the bus channel of one room to the local connections of that room.
// Run returns nil once the room has no local connection left, and an error when
// the subscription is lost so the supervisor starts it again.
type RoomListener struct {
	roomID   domain.RoomID
	lease    contract.ListenerLease
	bus      bus.IBus
	registry contract.IRegistry
	monitor  *observability.MonitoringManager
	log      *slog.Logger
}

func NewRoomListener(roomID domain.RoomID, lease contract.ListenerLease, b bus.IBus,
	registry contract.IRegistry, monitor *observability.MonitoringManager, log *slog.Logger) *RoomListener {
	return &RoomListener{
		roomID:   roomID,
		lease:    lease,
		bus:      b,
		registry: registry,
		monitor:  monitor,
		log:      log.With("room_id", roomID),
	}
}

func (w *RoomListener) Run(ctx context.Context) error {
	deliveries, err := w.bus.Subscribe(ctx, bus.RoomChannel(w.roomID))
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSubscriptionLost, err)
	}
	w.lease.MarkReady()
	w.monitor.ListenerStarted()
	defer w.monitor.ListenerStopped()
	w.log.Debug("Room listener subscribed")

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Room listener canceled")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.ErrSubscriptionLost
			}
			w.deliver(d)
			if w.lease.Release() {
				w.log.Debug("Room is empty, room listener terminating")
				return nil
			}
		}
	}
}

func (w *RoomListener) deliver(d bus.Delivery) {
	w.monitor.IncrEventsReceived()
	if d.Event.Type != domain.ChatMessageType || d.Event.Message == nil {
		return
	}
	payload, err := json.Marshal(d.Event.Message.Live())
	if err != nil {
		w.log.Error("Unable to encode chat message", "error", err)
		return
	}
	w.monitor.AddFramesDelivered(w.registry.BroadcastLocal(w.roomID, payload))
}
