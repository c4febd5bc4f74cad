package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"escalation-service/internal/api"
	"escalation-service/internal/breaker"
	"escalation-service/internal/channels"
	"escalation-service/internal/config"
	"escalation-service/internal/db"
	"escalation-service/internal/escalation"
	"escalation-service/internal/kafka"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/ops"
	"escalation-service/internal/providers"
	"escalation-service/internal/queue"
	"escalation-service/internal/render"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Operator surfacing (optional Telegram channel)
	var notifier ops.Notifier = ops.Noop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.OpsChatID != 0 {
		tg, err := ops.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID, logger)
		if err != nil {
			logger.Errorf("Ops Telegram channel unavailable: %v", err)
		} else {
			notifier = tg
		}
	}

	// One breaker per external channel provider; transitions go to the log
	// and the ops channel.
	breakers := breaker.NewRegistry(cfg.Breakers, config.BreakerSettings{}, func(name string, from, to breaker.State) {
		logger.Warnf("Circuit %s: %s -> %s", name, from, to)
		notifier.BreakerTransition(ctx, name, from.String(), to.String())
	})

	// Transport providers behind the breaker-guarded dispatcher
	dispatcher := channels.NewDispatcher(map[models.ChannelKind]channels.Provider{
		models.ChannelSMS:      providers.NewSMS(cfg),
		models.ChannelWhatsApp: providers.NewWhatsApp(cfg),
		models.ChannelVoice:    providers.NewVoice(cfg),
		models.ChannelEmail:    providers.NewEmail(cfg),
	}, breakers, logger)

	selector := channels.NewSelector(channels.SelectorConfig{Enabled: cfg.Channels.Enabled})

	// Durable queue over the jobs table; requeue anything a previous
	// process left mid-flight.
	if n, err := database.RecoverStale(ctx, time.Now()); err != nil {
		logger.Errorf("Stale job recovery failed: %v", err)
	} else if n > 0 {
		logger.Warnf("Requeued %d jobs left running by a previous process", n)
	}
	q := queue.New(database, logger, notifier, queue.Options{
		IndividualWorkers: cfg.Queue.IndividualWorkers,
		BulkWorkers:       cfg.Queue.BulkWorkers,
		PollInterval:      cfg.Queue.PollInterval,
		BackoffBase:       cfg.Queue.BackoffBase,
		BackoffCap:        cfg.Queue.BackoffCap,
		IndividualRetries: cfg.Queue.IndividualRetries,
		BulkRetries:       cfg.Queue.BulkRetries,
	})

	// Escalation core
	hub := api.NewHub(logger)
	executor := escalation.NewExecutor(dispatcher, render.Text{}, database, q, hub, logger, cfg.Channels.SendGap)
	svc := escalation.NewService(database, database, database, executor, q, logger)
	svc.RegisterHandlers(q)
	q.Start(ctx)
	defer q.Stop()

	// Hazard event ingestion
	var wg sync.WaitGroup
	consumer := kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID, database, svc, logger, cfg.Channels.DryRun)
	consumer.Start(ctx, &wg)
	defer consumer.Close()

	// API server
	handler := api.NewHandler(database, svc, q, breakers, selector, logger)
	router := api.NewRouter(handler, hub, logger, cfg)

	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Infof("Shutdown signal received")
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
}
