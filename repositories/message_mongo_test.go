package repositories

import (
	"chat-relay/domain"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestToMessage_KeepsNanosecondOrderFromSeq(t *testing.T) {
	req := require.New(t)
	id := uuid.New()
	seq := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC).UnixNano()

	// Given a document whose created_at lost its sub-millisecond part in BSON
	doc := messageDocument{
		ID:        id.String(),
		RoomID:    4,
		SenderID:  1,
		Username:  "alice",
		Text:      "hello",
		Seq:       seq,
		CreatedAt: time.Unix(0, seq).Truncate(time.Millisecond),
	}

	// When it is mapped back to a message
	message, err := toMessage(doc)

	// Then the timestamp comes from seq, at full precision
	req.NoError(err)
	req.Equal(domain.Message{
		ID:        id,
		RoomID:    4,
		SenderID:  1,
		Username:  "alice",
		Text:      "hello",
		CreatedAt: time.Unix(0, seq).UTC(),
	}, message)
}

func TestToMessage_RejectsInvalidID(t *testing.T) {
	req := require.New(t)

	_, err := toMessage(messageDocument{ID: "not-a-uuid", Seq: 1})

	req.Error(err)
}

func TestMongoMessageRepository_SeqIsStrictlyIncreasing(t *testing.T) {
	req := require.New(t)
	repository := &MongoMessageRepository{}

	// Given many concurrent appenders drawing sequence numbers
	const workers, perWorker = 8, 500
	seqs := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				seqs <- repository.nextSeq()
			}
		}()
	}
	wg.Wait()
	close(seqs)

	// Then no two appends share a position in the room order
	seen := make(map[int64]struct{}, workers*perWorker)
	for seq := range seqs {
		_, dup := seen[seq]
		req.False(dup, "duplicate seq %d", seq)
		seen[seq] = struct{}{}
	}
	req.Len(seen, workers*perWorker)
}
