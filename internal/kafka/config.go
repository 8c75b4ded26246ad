package kafka

import (
	"time"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/IBM/sarama"
)

// Топики по умолчанию
const (
	DefaultEventsTopic        = "booking.events"
	DefaultNotificationsTopic = "gateway.notifications"
	DefaultDeadLetterTopic    = "gateway.notifications.dlq"
	DefaultGroupID            = "booking-service"
)

// Config конфигурация для Kafka
type Config struct {
	Brokers            []string
	EventsTopic        string
	NotificationsTopic string
	DeadLetterTopic    string
	Producer           ProducerConfig
	Consumer           ConsumerConfig
}

// ProducerConfig конфигурация для продюсера
type ProducerConfig struct {
	MaxMessageBytes int
	Compression     sarama.CompressionCodec
	RequiredAcks    sarama.RequiredAcks
	WriteTimeout    time.Duration
}

// ConsumerConfig конфигурация для консьюмера уведомлений
type ConsumerConfig struct {
	Group             string
	InitialOffset     int64
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
}

// NewConfig создает новую конфигурацию Kafka
func NewConfig(brokers []string) *Config {
	return &Config{
		Brokers:            brokers,
		EventsTopic:        DefaultEventsTopic,
		NotificationsTopic: DefaultNotificationsTopic,
		DeadLetterTopic:    DefaultDeadLetterTopic,
		Producer: ProducerConfig{
			MaxMessageBytes: 1000000,
			Compression:     sarama.CompressionSnappy,
			RequiredAcks:    sarama.WaitForAll,
			WriteTimeout:    15 * time.Second,
		},
		Consumer: ConsumerConfig{
			Group:             DefaultGroupID,
			InitialOffset:     sarama.OffsetOldest,
			SessionTimeout:    10 * time.Second,
			HeartbeatInterval: 3 * time.Second,
			MaxRetries:        3,
			RetryBackoff:      500 * time.Millisecond,
		},
	}
}

// NewSaramaConfig создает новую конфигурацию Sarama для консьюмера уведомлений и продюсера DLQ
func NewSaramaConfig(cfg *Config, log *logger.Logger) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	// Версия Kafka
	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = "kleenpride-booking-service"

	// Настройки продюсера
	saramaConfig.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Producer.Compression
	saramaConfig.Producer.RequiredAcks = cfg.Producer.RequiredAcks
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	// Настройки консьюмера: offset фиксируется только после обработки сообщения
	saramaConfig.Consumer.Group.Session.Timeout = cfg.Consumer.SessionTimeout
	saramaConfig.Consumer.Group.Heartbeat.Interval = cfg.Consumer.HeartbeatInterval
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	saramaConfig.Consumer.Offsets.Initial = cfg.Consumer.InitialOffset
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	log.Debugw("Sarama config prepared", "version", saramaConfig.Version.String(), "group", cfg.Consumer.Group)
	return saramaConfig
}
