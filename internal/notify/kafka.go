package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"slaengine/internal/config"
)

// KafkaSink maps each notification channel onto a Kafka topic named
// "<prefix>.<channel>", keyed by shipment id so a shipment's events stay
// ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
	prefix string
	logger *slog.Logger
}

func NewKafkaSink(cfg config.NotifyKafkaConfig, logger *slog.Logger) *KafkaSink {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka notify disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("kafka notify enabled", "brokers", cfg.Brokers, "topic_prefix", cfg.TopicPrefix)
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.Hash{},
	}
	return &KafkaSink{writer: writer, prefix: cfg.TopicPrefix, logger: logger}
}

func (s *KafkaSink) Publish(ctx context.Context, channel string, ev Event) error {
	ev.Channel = channel
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.prefix + "." + channel,
		Key:   []byte(ev.Attempt.ShipmentID),
		Value: value,
	})
}

func (s *KafkaSink) Close() error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}
