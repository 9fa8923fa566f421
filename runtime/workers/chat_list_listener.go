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

// RoomLookup resolves the participants of a room.
type RoomLookup interface {
	GetByID(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
}

// ChatListNotifier is the set of chat-list connections of this process.
type ChatListNotifier interface {
	Broadcast(payload []byte) int
	BroadcastTo(payload []byte, userIDs ...domain.UserID) int
}

// ChatListListener is the process-wide wildcard subscriber.
// It relays chat_update events to every chat-list connection, or only to those of
// the two participants once ParticipantsOnly is set.
// With deliverMessages set it also serves chat_message events to the room registry,
// in which case no per-room listener is started.
type ChatListListener struct {
	bus              bus.IBus
	rooms            RoomLookup
	hub              ChatListNotifier
	registry         contract.IRegistry
	deliverMessages  bool
	participantsOnly bool
	monitor          *observability.MonitoringManager
	log              *slog.Logger
}

func NewChatListListener(b bus.IBus, rooms RoomLookup, hub ChatListNotifier, registry contract.IRegistry,
	deliverMessages bool, monitor *observability.MonitoringManager, log *slog.Logger) *ChatListListener {
	return &ChatListListener{
		bus:             b,
		rooms:           rooms,
		hub:             hub,
		registry:        registry,
		deliverMessages: deliverMessages,
		monitor:         monitor,
		log:             log,
	}
}

// ParticipantsOnly restricts chat updates to the users of the room.
func (w *ChatListListener) ParticipantsOnly(enabled bool) *ChatListListener {
	w.participantsOnly = enabled
	return w
}

func (w *ChatListListener) Run(ctx context.Context) error {
	deliveries, err := w.bus.Subscribe(ctx, bus.AllRooms)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSubscriptionLost, err)
	}
	w.log.Debug("Chat list listener subscribed", "pattern", bus.AllRooms)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.ErrSubscriptionLost
			}
			w.monitor.IncrEventsReceived()
			switch d.Event.Type {
			case domain.ChatUpdateType:
				w.relayUpdate(ctx, d)
			case domain.ChatMessageType:
				if w.deliverMessages {
					w.deliverMessage(d)
				}
			default:
				w.log.Debug("Ignoring unknown event type", "type", d.Event.Type, "channel", d.Channel)
			}
		}
	}
}

func (w *ChatListListener) relayUpdate(ctx context.Context, d bus.Delivery) {
	if d.Event.Update == nil {
		return
	}
	payload, err := json.Marshal(d.Event.Update)
	if err != nil {
		w.log.Error("Unable to encode chat update", "error", err)
		return
	}
	if !w.participantsOnly {
		w.monitor.AddFramesDelivered(w.hub.Broadcast(payload))
		return
	}
	room, err := w.rooms.GetByID(ctx, d.RoomID)
	if err != nil {
		w.log.Warn("Unable to resolve room of chat update", "room_id", d.RoomID, "error", err)
		return
	}
	w.monitor.AddFramesDelivered(w.hub.BroadcastTo(payload, room.SenderID, room.RecipientID))
}

func (w *ChatListListener) deliverMessage(d bus.Delivery) {
	if d.Event.Message == nil {
		return
	}
	payload, err := json.Marshal(d.Event.Message.Live())
	if err != nil {
		w.log.Error("Unable to encode chat message", "error", err)
		return
	}
	w.monitor.AddFramesDelivered(w.registry.BroadcastLocal(d.RoomID, payload))
}
