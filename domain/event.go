package domain

import "time"

type EventType string

const (
	ChatMessageType EventType = "chat_message"
	ChatUpdateType  EventType = "chat_update"
	ErrorType       EventType = "error"
)

// Identity is the authenticated user or a resolved peer profile.
type Identity struct {
	ID        UserID `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

// MessageView is the unit stored in the recent-message cache and sent to clients.
// Type is only set on live frames; history entries carry none.
type MessageView struct {
	Text      string    `json:"text"`
	UserID    UserID    `json:"user_id"`
	AvatarURL string    `json:"avatarUrl"`
	Username  string    `json:"username,omitempty"`
	Type      EventType `json:"type,omitempty"`
}

// Live returns the view as pushed to connected clients.
func (v MessageView) Live() MessageView {
	v.Type = ChatMessageType
	return v
}

// ChatUpdate notifies chat-list listeners that a room has a new last message.
type ChatUpdate struct {
	RoomID      RoomID    `json:"room_id"`
	LastMessage string    `json:"last_message"`
	SenderID    UserID    `json:"sender_id"`
	Type        EventType `json:"type"`
}

// Event is the payload carried by the broadcast bus.
// Type discriminates which of Message or Update is set.
type Event struct {
	Type    EventType    `json:"type"`
	RoomID  RoomID       `json:"room_id"`
	Message *MessageView `json:"message,omitempty"`
	Update  *ChatUpdate  `json:"update,omitempty"`
}

// ErrorFrame is sent to a single client when its own message could not be handled.
type ErrorFrame struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// ChatItem is one entry of a user's chat list.
type ChatItem struct {
	RoomID          RoomID    `json:"room_id"`
	ExternalID      string    `json:"external_id"`
	Recipient       Identity  `json:"recipient"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
}

func NewMessageEvent(roomID RoomID, view MessageView) Event {
	return Event{Type: ChatMessageType, RoomID: roomID, Message: &view}
}

func NewUpdateEvent(message Message) Event {
	return Event{
		Type:   ChatUpdateType,
		RoomID: message.RoomID,
		Update: &ChatUpdate{
			RoomID:      message.RoomID,
			LastMessage: message.Text,
			SenderID:    message.SenderID,
			Type:        ChatUpdateType,
		},
	}
}

// ToView builds the client representation of a message.
func ToView(message Message, avatarURL string) MessageView {
	return MessageView{
		Text:      message.Text,
		UserID:    message.SenderID,
		AvatarURL: avatarURL,
		Username:  message.Username,
	}
}
