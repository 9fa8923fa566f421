package events

import (
	"chat-relay/domain"
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// MessageExporter hands every persisted message to downstream consumers.
// Export failures never affect the chat flow; callers only log them.
type MessageExporter interface {
	Export(ctx context.Context, message domain.Message) error
	Close() error
}

// ExportedMessage is the record written to the message topic.
type ExportedMessage struct {
	ID        uuid.UUID     `json:"id"`
	RoomID    domain.RoomID `json:"room_id"`
	SenderID  domain.UserID `json:"sender_id"`
	Username  string        `json:"username,omitempty"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"created_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaExporter keys records by room so one room's messages stay in one partition, in order.
// The writer is asynchronous: Export only enqueues and delivery errors are logged by the completion hook.
type KafkaExporter struct {
	writer messageWriter
	topic  string
	log    *slog.Logger
}

const exportBatchTimeout = 10 * time.Millisecond

func NewKafkaExporter(brokers []string, topic string, log *slog.Logger) *KafkaExporter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: exportBatchTimeout,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("Unable to export messages", "topic", topic, "count", len(messages), "error", err)
			}
		},
	}
	return &KafkaExporter{writer: w, topic: topic, log: log}
}

func (e *KafkaExporter) Export(ctx context.Context, message domain.Message) error {
	b, err := json.Marshal(toExported(message))
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(int64(message.RoomID), 10)),
		Value: b,
		Time:  message.CreatedAt,
	})
}

func (e *KafkaExporter) Close() error {
	if e.writer == nil {
		return nil
	}
	e.log.Debug("Closing kafka exporter", "topic", e.topic)
	return e.writer.Close()
}

func toExported(message domain.Message) ExportedMessage {
	return ExportedMessage{
		ID:        message.ID,
		RoomID:    message.RoomID,
		SenderID:  message.SenderID,
		Username:  message.Username,
		Text:      message.Text,
		CreatedAt: message.CreatedAt,
	}
}

// NoopExporter is used when no broker is configured.
type NoopExporter struct{}

func (NoopExporter) Export(context.Context, domain.Message) error { return nil }
func (NoopExporter) Close() error                                 { return nil }
