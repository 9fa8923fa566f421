package domain

import (
	"fmt"
	"time"
)

type RoomID int64

type UserID int64

// Room is the durable conversation between exactly two users.
// At most one Room exists per unordered pair of users.
type Room struct {
	ID          RoomID
	ExternalID  string
	SenderID    UserID
	RecipientID UserID
	CreatedAt   time.Time
}

// Pair returns the participants ordered so that (a, b) and (b, a) map to the same key.
func Pair(a, b UserID) (UserID, UserID) {
	if a > b {
		return b, a
	}
	return a, b
}

// Has tells whether the user takes part in the room.
func (r Room) Has(userID UserID) bool {
	return r.SenderID == userID || r.RecipientID == userID
}

// PeerOf returns the other participant of the room.
func (r Room) PeerOf(userID UserID) UserID {
	if r.SenderID == userID {
		return r.RecipientID
	}
	return r.SenderID
}

func (r RoomID) String() string {
	return fmt.Sprintf("%d", r)
}
