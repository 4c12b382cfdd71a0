package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/dedup"
	"github.com/smukkama/farm-analyzer/internal/logger"
	"github.com/smukkama/farm-analyzer/internal/pipeline"
	"github.com/smukkama/farm-analyzer/internal/queue"
	"github.com/smukkama/farm-analyzer/internal/thresholdsrc"
	"github.com/smukkama/farm-analyzer/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File, "analyzer")
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	log.Info("Starting Analyzer Service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	th, err := thresholdsrc.Load(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to load thresholds: %v", err)
	}
	analyzer, err := agronomy.NewAnalyzer(th)
	if err != nil {
		log.Fatalf("Failed to build analyzer: %v", err)
	}
	log.WithFields(logrus.Fields{
		"source":      cfg.Analysis.ThresholdSource,
		"aggregation": th.Aggregation,
		"strict":      th.Health.Strict,
	}).Info("Thresholds loaded")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	tracker := dedup.NewTracker(redisClient, cfg.Analysis.DedupTTL, cfg.Analysis.ClaimLease)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = tracker.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Info("Connected to Redis")

	for _, topic := range []string{cfg.Kafka.TopicRequests, cfg.Kafka.TopicReports} {
		if err := queue.CreateTopic(cfg.Kafka.Brokers, topic, cfg.Kafka.NumPartitions, 1); err != nil {
			log.WithError(err).WithField("topic", topic).Warn("Could not create topic (it may already exist)")
		}
	}

	reportProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReports, log)
	defer reportProducer.Close()

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRequests, "analyzer-group", log)
	defer consumer.Close()
	log.Info("Kafka consumer and report producer initialized")

	processor := pipeline.NewProcessor(analyzer, tracker, reportProducer, log)
	worker := pipeline.NewWorker(consumer, processor, pipeline.WorkerConfig{
		BatchSize:     cfg.Analysis.BatchSize,
		FlushInterval: cfg.Analysis.FlushInterval,
		Concurrency:   cfg.Analysis.Workers,
	}, log)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := consumer.Stats()
				log.WithFields(logrus.Fields{
					"messages": stats.Messages,
					"bytes":    stats.Bytes,
					"errors":   stats.Errors,
					"lag":      stats.Lag,
				}).Info("Consumer stats")
			}
		}
	}()

	log.WithFields(logrus.Fields{
		"requests":   cfg.Kafka.TopicRequests,
		"reports":    cfg.Kafka.TopicReports,
		"workers":    cfg.Analysis.Workers,
		"batch_size": cfg.Analysis.BatchSize,
	}).Info("Analyzer Service is running")

	if err := worker.Run(ctx); err != nil {
		log.Fatalf("Analyzer stopped: %v", err)
	}
	log.Info("Analyzer Service stopped")
}
