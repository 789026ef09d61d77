package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"slaengine/internal/config"
	"slaengine/internal/model"
)

func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.IssueEvent, dedupe *DedupeCache, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			ev, err := DecodeIssueEvent(m.Value)
			if err != nil {
				if logger != nil {
					logger.Warn("kafka issue event rejected", "err", err)
				}
				continue
			}
			ev.Source = "kafka"
			if dedupe != nil && dedupe.Seen(ev.IssueID, time.Now().UTC(), cfg.Get().Ingest.DedupeWindow) {
				continue
			}
			SendNonBlocking(ctx, out, ev, logger)
		}
	}()
}
