package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoMessageRepository keeps messages in a document collection.
// created_at only has millisecond precision in BSON, so ordering relies on seq (unix nanos).
type MongoMessageRepository struct {
	coll *mongo.Collection
	log  *slog.Logger

	mu      sync.Mutex
	lastSeq int64
}

type messageDocument struct {
	ID        string    `bson:"_id"`
	RoomID    int64     `bson:"room_id"`
	SenderID  int64     `bson:"sender_id"`
	Username  string    `bson:"username"`
	Text      string    `bson:"text"`
	Seq       int64     `bson:"seq"`
	CreatedAt time.Time `bson:"created_at"`
}

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

func NewMongoMessageRepository(ctx context.Context, coll *mongo.Collection, log *slog.Logger) (*MongoMessageRepository, error) {
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "seq", Value: -1}},
		Options: options.Index().SetName("room_seq_idx"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, ix); err != nil {
		return nil, fmt.Errorf("mongo: create index: %w", err)
	}
	return &MongoMessageRepository{coll: coll, log: log}, nil
}

func (r *MongoMessageRepository) nextSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC().UnixNano()
	if now <= r.lastSeq {
		now = r.lastSeq + 1
	}
	r.lastSeq = now
	return now
}

func (r *MongoMessageRepository) Append(ctx context.Context, roomID domain.RoomID, sender domain.Identity, text string) (domain.Message, error) {
	seq := r.nextSeq()
	doc := messageDocument{
		ID:        uuid.NewString(),
		RoomID:    int64(roomID),
		SenderID:  int64(sender.ID),
		Username:  sender.Username,
		Text:      text,
		Seq:       seq,
		CreatedAt: time.Unix(0, seq).UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return toMessage(doc)
}

func (r *MongoMessageRepository) ListRecent(ctx context.Context, roomID domain.RoomID, limit int, order Order) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{"room_id": int64(roomID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	var docs []messageDocument
	if err = cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	messages := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		message, err := toMessage(doc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if order == OldestFirst {
		return lo.Reverse(messages), nil
	}
	return messages, nil
}

func (r *MongoMessageRepository) Count(ctx context.Context, roomID domain.RoomID) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"room_id": int64(roomID)})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

func (r *MongoMessageRepository) DeleteOldest(ctx context.Context, roomID domain.RoomID) (bool, error) {
	opts := options.FindOneAndDelete().SetSort(bson.D{{Key: "seq", Value: 1}})
	err := r.coll.FindOneAndDelete(ctx, bson.M{"room_id": int64(roomID)}, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return true, nil
}

func (r *MongoMessageRepository) LastMessages(ctx context.Context, roomIDs []domain.RoomID) (map[domain.RoomID]domain.Message, error) {
	last := make(map[domain.RoomID]domain.Message, len(roomIDs))
	if len(roomIDs) == 0 {
		return last, nil
	}
	ids := lo.Map(roomIDs, func(id domain.RoomID, _ int) int64 { return int64(id) })
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"room_id": bson.M{"$in": ids}}}},
		{{Key: "$sort", Value: bson.D{{Key: "seq", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$room_id"},
			{Key: "doc", Value: bson.M{"$first": "$$ROOT"}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	var groups []struct {
		Doc messageDocument `bson:"doc"`
	}
	if err = cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	for _, group := range groups {
		message, err := toMessage(group.Doc)
		if err != nil {
			return nil, err
		}
		last[message.RoomID] = message
	}
	return last, nil
}

func (r *MongoMessageRepository) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func toMessage(doc messageDocument) (domain.Message, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message id: %w", err)
	}
	return domain.Message{
		ID:        id,
		RoomID:    domain.RoomID(doc.RoomID),
		SenderID:  domain.UserID(doc.SenderID),
		Username:  doc.Username,
		Text:      doc.Text,
		CreatedAt: time.Unix(0, doc.Seq).UTC(),
	}, nil
}
