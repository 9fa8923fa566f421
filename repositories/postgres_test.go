package repositories

import (
	"chat-relay/domain"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"plain", "postgres://u:p@db:5432/chat", "postgres://u:p@db:5432/chat"},
		{"asyncpg scheme", "postgresql+asyncpg://u:p@db/chat", "postgresql://u:p@db/chat"},
		{"short asyncpg scheme", "postgres+asyncpg://u:p@db/chat", "postgres://u:p@db/chat"},
		{"surrounding spaces", "  postgres://db/chat\n", "postgres://db/chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, normalizeDSN(tt.dsn))
		})
	}
}

func TestScanRoom(t *testing.T) {
	req := require.New(t)
	paris := time.FixedZone("CET", 3600)
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, paris)

	// Given a rooms row
	row := fakeRow{values: []any{int64(7), "0b8a1c2e-3f4d-4e5f-8a6b-7c8d9e0f1a2b", int64(2), int64(1), createdAt}}

	// When it is scanned
	room, err := scanRoom(row)

	// Then ids are typed and the timestamp is normalised to UTC
	req.NoError(err)
	req.Equal(domain.Room{
		ID:          7,
		ExternalID:  "0b8a1c2e-3f4d-4e5f-8a6b-7c8d9e0f1a2b",
		SenderID:    2,
		RecipientID: 1,
		CreatedAt:   createdAt.UTC(),
	}, room)
	req.True(room.Has(1))
	req.Equal(domain.UserID(2), room.PeerOf(1))
}

func TestScanRoom_PropagatesScanError(t *testing.T) {
	req := require.New(t)
	noRows := errors.New("no rows in result set")

	_, err := scanRoom(fakeRow{err: noRows})

	req.ErrorIs(err, noRows)
}
