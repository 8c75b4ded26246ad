package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// RequiredTopics возвращает топики, которые использует сервис
func RequiredTopics(cfg *Config) []kafkaGo.TopicConfig {
	return []kafkaGo.TopicConfig{
		{Topic: cfg.EventsTopic, NumPartitions: 3, ReplicationFactor: 1},
		{Topic: cfg.NotificationsTopic, NumPartitions: 3, ReplicationFactor: 1},
		{Topic: cfg.DeadLetterTopic, NumPartitions: 1, ReplicationFactor: 1},
	}
}

// EnsureTopics проверяет и создает необходимые топики Kafka
func EnsureTopics(ctx context.Context, brokers []string, topics []kafkaGo.TopicConfig, log *logger.Logger) error {
	log.Infow("Ensuring Kafka topics exist", "topics", topicNames(topics))

	if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
		log.Errorw("Kafka broker address is empty")
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(brokers[0])
	if _, portStr, err := net.SplitHostPort(broker); err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	} else if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", broker, err)
	}

	conn, err := kafkaGo.DialContext(ctx, "tcp", broker)
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker", "broker", broker, "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}
	existing := make(map[string]bool)
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	var missing []kafkaGo.TopicConfig
	for _, t := range topics {
		if t.Topic != "" && !existing[t.Topic] {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		log.Infow("All required topics already exist")
		return nil
	}

	// топики создаются через контроллер кластера
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	controllerConn, err := kafkaGo.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer controllerConn.Close()

	if err := controllerConn.CreateTopics(missing...); err != nil {
		if !errors.Is(err, kafkaGo.TopicAlreadyExists) {
			log.Errorw("Failed to create topics", "error", err, "topics", topicNames(missing))
			return fmt.Errorf("kafka create topics failed: %w", err)
		}
		log.Warnw("One or more topics already existed during creation attempt", "topics", topicNames(missing))
	}

	log.Infow("Kafka topics created", "topics", topicNames(missing))
	return nil
}

func topicNames(topics []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Topic)
	}
	return names
}
