package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
)

// Producer emits message.sent events for downstream workers after the
// persisted write. Delivery failures never block or fail the send path.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: w}
}

func (p *Producer) MessageSent(ctx context.Context, m *models.Message) error {
	b, err := json.Marshal(map[string]any{
		"message_id": m.ID,
		"chat_type":  m.ChatType,
		"ref_id":     m.RefID,
		"author_id":  m.AuthorID,
		"created_at": m.CreatedAt,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.RefID),
		Value: b,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
