package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/kafka/producer"
	"github.com/Dhoini/kleenpride-booking-service/internal/service"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/IBM/sarama"
)

// NotificationProcessor применяет уведомления платежного шлюза
type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, source string, params map[string]string) (*service.ReconciliationResult, error)
}

// NotificationConsumer читает уведомления шлюза, пересланные в Kafka, и передает их на сверку.
// Сообщения с неверной подписью или формой уходят в DLQ и не применяются.
type NotificationConsumer struct {
	group        sarama.ConsumerGroup
	topics       []string
	processor    NotificationProcessor
	deadLetters  producer.DeadLetterProducer
	maxRetries   int
	retryBackoff time.Duration
	log          *logger.Logger
}

// NewNotificationConsumer создает consumer group Sarama
func NewNotificationConsumer(
	cfg *Config,
	processor NotificationProcessor,
	deadLetters producer.DeadLetterProducer,
	log *logger.Logger,
) (*NotificationConsumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Consumer.Group, NewSaramaConfig(cfg, log))
	if err != nil {
		log.Errorw("Failed to create Kafka consumer group", "error", err, "group", cfg.Consumer.Group)
		return nil, fmt.Errorf("kafka: failed to create consumer group: %w", err)
	}
	return newNotificationConsumer(group, cfg, processor, deadLetters, log), nil
}

func newNotificationConsumer(
	group sarama.ConsumerGroup,
	cfg *Config,
	processor NotificationProcessor,
	deadLetters producer.DeadLetterProducer,
	log *logger.Logger,
) *NotificationConsumer {
	return &NotificationConsumer{
		group:        group,
		topics:       []string{cfg.NotificationsTopic},
		processor:    processor,
		deadLetters:  deadLetters,
		maxRetries:   cfg.Consumer.MaxRetries,
		retryBackoff: cfg.Consumer.RetryBackoff,
		log:          log,
	}
}

// Run читает сообщения до отмены ctx
func (c *NotificationConsumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Warnw("Kafka consumer group error", "error", err)
		}
	}()

	c.log.Infow("Kafka notification consumer started", "topics", c.topics)
	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Errorw("Kafka consume session failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			c.log.Infow("Kafka notification consumer stopped")
			return nil
		}
	}
}

// Close закрывает consumer group
func (c *NotificationConsumer) Close() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close consumer group: %w", err)
	}
	return nil
}

// Setup вызывается sarama в начале сессии
func (c *NotificationConsumer) Setup(sess sarama.ConsumerGroupSession) error {
	c.log.Debugw("Kafka session started", "memberID", sess.MemberID(), "generation", sess.GenerationID())
	return nil
}

// Cleanup вызывается sarama в конце сессии
func (c *NotificationConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения партиции по порядку
func (c *NotificationConsumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !c.handle(sess.Context(), msg) {
				// offset коммитится накопительно: дальше читать нельзя, сессия начнется с этого сообщения
				return c.abandonClaim(sess.Context(), msg)
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (c *NotificationConsumer) abandonClaim(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if ctx.Err() != nil {
		return nil
	}
	c.log.Errorw("Stopping partition on unhandled gateway notification",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	select {
	case <-ctx.Done():
	case <-time.After(c.retryBackoff):
	}
	return fmt.Errorf("kafka: notification %s/%d@%d not handled", msg.Topic, msg.Partition, msg.Offset)
}

// handle возвращает true, если offset сообщения можно зафиксировать
func (c *NotificationConsumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	params, err := decodeNotification(msg.Value)
	if err != nil {
		c.log.Warnw("Undecodable gateway notification", "error", err, "partition", msg.Partition, "offset", msg.Offset)
		return c.deadLetter(ctx, msg, "malformed")
	}

	for attempt := 0; ; attempt++ {
		res, err := c.processor.ProcessNotification(ctx, service.SourceKafka, params)
		switch {
		case err == nil, res != nil:
			// применено, повтор или передано на ручную сверку
			return true
		case errors.Is(err, domain.ErrSignatureMismatch):
			return c.deadLetter(ctx, msg, "signature_mismatch")
		case errors.Is(err, domain.ErrMalformedNotification):
			return c.deadLetter(ctx, msg, "malformed")
		}

		if attempt >= c.maxRetries {
			c.log.Errorw("Giving up on gateway notification", "error", err, "attempts", attempt+1, "offset", msg.Offset)
			return c.deadLetter(ctx, msg, "processing_failed")
		}

		c.log.Warnw("Retrying gateway notification", "error", err, "attempt", attempt+1, "offset", msg.Offset)
		select {
		case <-ctx.Done():
			// сообщение будет доставлено повторно после ребалансировки
			return false
		case <-time.After(c.retryBackoff * time.Duration(attempt+1)):
		}
	}
}

func (c *NotificationConsumer) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, reason string) bool {
	if c.deadLetters == nil {
		return true
	}
	err := c.deadLetters.Publish(ctx, producer.DeadLetter{
		Key:             string(msg.Key),
		Value:           msg.Value,
		Reason:          reason,
		SourceTopic:     msg.Topic,
		SourcePartition: msg.Partition,
		SourceOffset:    msg.Offset,
	})
	return err == nil
}

// decodeNotification принимает JSON-объект строковых полей или тело формы (как в ITN)
func decodeNotification(value []byte) (map[string]string, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, errors.New("empty notification")
	}

	if trimmed[0] == '{' {
		var params map[string]string
		if err := json.Unmarshal(trimmed, &params); err != nil {
			return nil, fmt.Errorf("decode json notification: %w", err)
		}
		return params, nil
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("decode form notification: %w", err)
	}
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params, nil
}
