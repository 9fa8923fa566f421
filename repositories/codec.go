package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Badger values are protobuf wire-encoded records.
// Field numbers are stable: new fields get new numbers, unknown fields are skipped on read.

const (
	msgFieldID protowire.Number = iota + 1
	msgFieldRoom
	msgFieldSender
	msgFieldUsername
	msgFieldText
	msgFieldAt
)

const (
	roomFieldID protowire.Number = iota + 1
	roomFieldExternalID
	roomFieldSender
	roomFieldRecipient
	roomFieldCreatedAt
)

const (
	userFieldID protowire.Number = iota + 1
	userFieldUsername
	userFieldEmail
	userFieldAvatar
)

type record struct {
	varints map[protowire.Number]uint64
	strings map[protowire.Number]string
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func decodeRecord(b []byte) (record, error) {
	r := record{
		varints: make(map[protowire.Number]uint64),
		strings: make(map[protowire.Number]string),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.varints[num] = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.strings[num] = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, msgFieldID, m.ID.String())
	b = appendVarint(b, msgFieldRoom, uint64(m.RoomID))
	b = appendVarint(b, msgFieldSender, uint64(m.SenderID))
	b = appendString(b, msgFieldUsername, m.Username)
	b = appendString(b, msgFieldText, m.Text)
	b = appendVarint(b, msgFieldAt, uint64(m.CreatedAt.UnixNano()))
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	id, err := uuid.Parse(r.strings[msgFieldID])
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message id: %w", err)
	}
	return domain.Message{
		ID:        id,
		RoomID:    domain.RoomID(r.varints[msgFieldRoom]),
		SenderID:  domain.UserID(r.varints[msgFieldSender]),
		Username:  r.strings[msgFieldUsername],
		Text:      r.strings[msgFieldText],
		CreatedAt: time.Unix(0, int64(r.varints[msgFieldAt])).UTC(),
	}, nil
}

func encodeRoom(room domain.Room) []byte {
	var b []byte
	b = appendVarint(b, roomFieldID, uint64(room.ID))
	b = appendString(b, roomFieldExternalID, room.ExternalID)
	b = appendVarint(b, roomFieldSender, uint64(room.SenderID))
	b = appendVarint(b, roomFieldRecipient, uint64(room.RecipientID))
	b = appendVarint(b, roomFieldCreatedAt, uint64(room.CreatedAt.UnixNano()))
	return b
}

func decodeRoom(b []byte) (domain.Room, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return domain.Room{}, fmt.Errorf("decode room: %w", err)
	}
	return domain.Room{
		ID:          domain.RoomID(r.varints[roomFieldID]),
		ExternalID:  r.strings[roomFieldExternalID],
		SenderID:    domain.UserID(r.varints[roomFieldSender]),
		RecipientID: domain.UserID(r.varints[roomFieldRecipient]),
		CreatedAt:   time.Unix(0, int64(r.varints[roomFieldCreatedAt])).UTC(),
	}, nil
}

func encodeUser(u domain.Identity) []byte {
	var b []byte
	b = appendVarint(b, userFieldID, uint64(u.ID))
	b = appendString(b, userFieldUsername, u.Username)
	b = appendString(b, userFieldEmail, u.Email)
	b = appendString(b, userFieldAvatar, u.AvatarURL)
	return b
}

func decodeUser(b []byte) (domain.Identity, error) {
	r, err := decodeRecord(b)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("decode user: %w", err)
	}
	return domain.Identity{
		ID:        domain.UserID(r.varints[userFieldID]),
		Username:  r.strings[userFieldUsername],
		Email:     r.strings[userFieldEmail],
		AvatarURL: r.strings[userFieldAvatar],
	}, nil
}
