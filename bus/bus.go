//go:generate go run go.uber.org/mock/mockgen -source=bus.go -destination=../mocks/mock_bus.go -package=mocks
package bus

import (
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	channelPrefix = "chat:room:"
	channelSuffix = ":channel"
	// AllRooms matches the channel of every room.
	AllRooms = channelPrefix + "*" + channelSuffix

	deliveryBufferSize = 256
)

type Delivery struct {
	Channel string
	RoomID  domain.RoomID
	Event   domain.Event
}

// IBus carries events between server processes.
// Publishing is fire-and-forget: events published while nobody listens are lost.
type IBus interface {
	Publish(ctx context.Context, roomID domain.RoomID, event domain.Event) error
	// Subscribe returns once the subscription is confirmed by the backend.
	// The channel is closed when ctx is done or when the subscription is lost;
	// callers tell both apart with ctx.Err().
	Subscribe(ctx context.Context, pattern string) (<-chan Delivery, error)
	Ping(ctx context.Context) error
	Close() error
}

func RoomChannel(roomID domain.RoomID) string {
	return fmt.Sprintf("%s%d%s", channelPrefix, roomID, channelSuffix)
}

// ParseRoomChannel extracts the room id of a concrete room channel.
func ParseRoomChannel(channel string) (domain.RoomID, bool) {
	if !strings.HasPrefix(channel, channelPrefix) || !strings.HasSuffix(channel, channelSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(channel, channelPrefix), channelSuffix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return domain.RoomID(id), true
}

func isPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

func encode(event domain.Event) ([]byte, error) {
	return json.Marshal(event)
}

func decode(channel string, payload []byte) (Delivery, error) {
	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Delivery{}, fmt.Errorf("decode event on %s: %w", channel, err)
	}
	roomID, ok := ParseRoomChannel(channel)
	if !ok {
		roomID = event.RoomID
	}
	return Delivery{Channel: channel, RoomID: roomID, Event: event}, nil
}
