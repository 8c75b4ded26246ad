package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// EventProducer публикует события бронирований в Kafka.
// Ключ сообщения - ID бронирования, поэтому события одного бронирования попадают в одну партицию по порядку.
type EventProducer struct {
	writer       *kafka.Writer
	writeTimeout time.Duration
	log          *logger.Logger
}

// NewEventProducer создает и настраивает новый продюсер событий
func NewEventProducer(cfg *Config, log *logger.Logger) (*EventProducer, error) {
	if len(cfg.Brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	timeout := cfg.Producer.WriteTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	log.Infow("Kafka event producer initialized", "brokers", cfg.Brokers, "topic", cfg.EventsTopic)
	return &EventProducer{writer: writer, writeTimeout: timeout, log: log}, nil
}

// Publish отправляет события одним пакетом
func (p *EventProducer) Publish(ctx context.Context, events ...domain.BookingEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := eventMessage(ev)
		if err != nil {
			p.log.Errorw("Failed to marshal booking event", "error", err, "bookingID", ev.BookingID, "type", ev.Type)
			return err
		}
		messages = append(messages, msg)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, messages...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.log.Errorw("Kafka write timeout exceeded", "error", err, "bookingID", events[0].BookingID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		p.log.Errorw("Failed to write booking events to Kafka", "error", err, "bookingID", events[0].BookingID)
		return fmt.Errorf("kafka: failed to write messages: %w", err)
	}

	p.log.Debugw("Published booking events", "count", len(messages), "bookingID", events[0].BookingID)
	return nil
}

// Close закрывает соединение Kafka Writer
func (p *EventProducer) Close() error {
	if err := p.writer.Close(); err != nil {
		p.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	p.log.Infow("Kafka event producer closed")
	return nil
}

func eventMessage(ev domain.BookingEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.BookingID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}
