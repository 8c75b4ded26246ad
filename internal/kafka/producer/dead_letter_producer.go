package producer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/IBM/sarama"
)

// DeadLetter уведомление, которое не удалось применить
type DeadLetter struct {
	Key             string
	Value           []byte
	Reason          string
	SourceTopic     string
	SourcePartition int32
	SourceOffset    int64
}

// DeadLetterProducer интерфейс для отправки необработанных уведомлений в отдельный топик
type DeadLetterProducer interface {
	Publish(ctx context.Context, letter DeadLetter) error
	Close() error
}

type kafkaDeadLetterProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewDeadLetterProducer создает новый продюсер DLQ поверх синхронного продюсера Sarama
func NewDeadLetterProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) DeadLetterProducer {
	return &kafkaDeadLetterProducer{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// Publish отправляет исходное сообщение с причиной в заголовках
func (p *kafkaDeadLetterProducer) Publish(ctx context.Context, letter DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(letter.Key),
		Value: sarama.ByteEncoder(letter.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("reason"), Value: []byte(letter.Reason)},
			{Key: []byte("source_topic"), Value: []byte(letter.SourceTopic)},
			{Key: []byte("source_partition"), Value: []byte(strconv.FormatInt(int64(letter.SourcePartition), 10))},
			{Key: []byte("source_offset"), Value: []byte(strconv.FormatInt(letter.SourceOffset, 10))},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.log.Errorw("Failed to publish dead letter", "error", err, "reason", letter.Reason, "key", letter.Key)
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}

	p.log.Warnw("Notification moved to dead letter topic",
		"topic", p.topic, "partition", partition, "offset", offset,
		"reason", letter.Reason, "key", letter.Key)
	return nil
}

// Close закрывает продюсер
func (p *kafkaDeadLetterProducer) Close() error {
	return p.producer.Close()
}
