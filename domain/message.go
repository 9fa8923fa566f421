// Package domain contains core concepts of the chat relay.
// This file defines Messages and the text rules applied at the protocol boundary.
// Messages are immutable once persisted.
package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxTextLength is counted in characters, not bytes.
	MaxTextLength = 1024
	// RetentionLimit is the number of messages kept per room.
	RetentionLimit = 500
)

// Message represents an immutable chat message.
type Message struct {
	ID        uuid.UUID
	RoomID    RoomID
	SenderID  UserID
	Username  string
	Text      string
	CreatedAt time.Time
}

// IsBlank reports whether the text has no content once surrounding whitespace is removed.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Truncate keeps at most max characters of text.
// Applying it twice yields the same result as applying it once.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}
