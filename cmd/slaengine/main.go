package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slaengine/internal/api"
	"slaengine/internal/config"
	"slaengine/internal/engine"
	"slaengine/internal/ingest"
	"slaengine/internal/logging"
	"slaengine/internal/model"
	"slaengine/internal/notify"
	"slaengine/internal/riskview"
	"slaengine/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to config file (json or yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "slaengine:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfgManager *config.Manager
	if configPath != "" {
		m, err := config.NewManager(config.ResolvePath(configPath))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfgManager = m
	} else {
		cfgManager = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := cfgManager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting", "version", version, "storage_driver", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	recent := notify.NewRecent(cfg.Notify.RecentLimit)
	sinks := []notify.Sink{recent}
	kafkaSink := notify.NewKafkaSink(cfg.Notify.Kafka, logger)
	if kafkaSink != nil {
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	sink := notify.NewFanout(sinks...)

	risk := riskview.NewStore(cfg.RiskView.StoreLimit)
	eng := engine.NewEngine(cfg, logger, store, sink, risk)

	issueEvents := make(chan model.IssueEvent, cfg.Ingest.ChannelBuffer)
	dedupe := ingest.NewDedupeCache()
	ingest.StartREST(ctx, cfgManager, issueEvents, dedupe, logger)
	ingest.StartKafka(ctx, cfgManager, issueEvents, dedupe, logger)
	eng.StartIssueIntake(ctx, issueEvents)

	go eng.RunScanner(ctx)
	go eng.RunAdvancer(ctx)

	api.Start(ctx, cfgManager, risk, recent, eng, logger, version)

	if cfgManager.Path() != "" {
		go cfgManager.Watch(3*time.Second,
			func(next *config.Config) {
				eng.UpdateConfig(next)
				logger.Info("config reloaded")
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done(),
		)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
