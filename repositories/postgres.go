package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGINT PRIMARY KEY,
	username   TEXT NOT NULL,
	email      TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS rooms (
	id           BIGSERIAL PRIMARY KEY,
	external_id  UUID NOT NULL UNIQUE,
	sender_id    BIGINT NOT NULL,
	recipient_id BIGINT NOT NULL,
	user_low     BIGINT NOT NULL,
	user_high    BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_low, user_high)
);
CREATE INDEX IF NOT EXISTS rooms_sender_idx ON rooms (sender_id);
CREATE INDEX IF NOT EXISTS rooms_recipient_idx ON rooms (recipient_id);
`

// ConnectPostgres creates a pgx pool and verifies the connection with a ping.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the minimal room and user tables when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	s = strings.Replace(s, "postgresql+asyncpg://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+asyncpg://", "postgres://", 1)
	return s
}

type PgRoomRepository struct {
	pool *pgxpool.Pool
}

func NewPgRoomRepository(pool *pgxpool.Pool) *PgRoomRepository {
	return &PgRoomRepository{pool: pool}
}

const roomColumns = "id, external_id::text, sender_id, recipient_id, created_at"

func scanRoom(row pgx.Row) (domain.Room, error) {
	var (
		room                  domain.Room
		id, sender, recipient int64
	)
	if err := row.Scan(&id, &room.ExternalID, &sender, &recipient, &room.CreatedAt); err != nil {
		return domain.Room{}, err
	}
	room.ID = domain.RoomID(id)
	room.SenderID = domain.UserID(sender)
	room.RecipientID = domain.UserID(recipient)
	room.CreatedAt = room.CreatedAt.UTC()
	return room, nil
}

func (r *PgRoomRepository) GetOrCreate(ctx context.Context, senderID, recipientID domain.UserID) (domain.Room, bool, error) {
	if senderID == recipientID {
		return domain.Room{}, false, errors.ErrSelfRoom
	}
	// Both orderings are looked up before creating.
	room, err := scanRoom(r.pool.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		LIMIT 1`, int64(senderID), int64(recipientID)))
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, false, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	low, high := domain.Pair(senderID, recipientID)
	room, err = scanRoom(r.pool.QueryRow(ctx, `
		INSERT INTO rooms (external_id, sender_id, recipient_id, user_low, user_high)
		VALUES ($1::uuid, $2, $3, $4, $5)
		ON CONFLICT (user_low, user_high) DO NOTHING
		RETURNING `+roomColumns,
		uuid.NewString(), int64(senderID), int64(recipientID), int64(low), int64(high)))
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, false, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}

	// A concurrent caller won the insert.
	room, err = scanRoom(r.pool.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE user_low = $1 AND user_high = $2`,
		int64(low), int64(high)))
	if err != nil {
		return domain.Room{}, false, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return room, false, nil
}

func (r *PgRoomRepository) GetByID(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, int64(roomID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return room, nil
}

func (r *PgRoomRepository) ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY id`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
		}
		rooms = append(rooms, room)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return rooms, nil
}

func (r *PgRoomRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return nil
}

type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) GetUser(ctx context.Context, userID domain.UserID) (domain.Identity, error) {
	var (
		user domain.Identity
		id   int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, email, avatar_url FROM users WHERE id = $1`, int64(userID)).
		Scan(&id, &user.Username, &user.Email, &user.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	user.ID = domain.UserID(id)
	return user, nil
}

func (r *PgUserRepository) GetUsers(ctx context.Context, userIDs []domain.UserID) (map[domain.UserID]domain.Identity, error) {
	ids := make([]int64, len(userIDs))
	for i, id := range userIDs {
		ids[i] = int64(id)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, email, avatar_url FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	users := make(map[domain.UserID]domain.Identity, len(userIDs))
	for rows.Next() {
		var (
			user domain.Identity
			id   int64
		)
		if err = rows.Scan(&id, &user.Username, &user.Email, &user.AvatarURL); err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
		}
		user.ID = domain.UserID(id)
		users[user.ID] = user
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return users, nil
}

func (r *PgUserRepository) PutUser(ctx context.Context, user domain.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, avatar_url) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username,
		                               email = EXCLUDED.email,
		                               avatar_url = EXCLUDED.avatar_url`,
		int64(user.ID), user.Username, user.Email, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return nil
}
