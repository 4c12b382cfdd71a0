package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/logger"
	"github.com/smukkama/farm-analyzer/internal/notification"
	"github.com/smukkama/farm-analyzer/internal/queue"
	"github.com/smukkama/farm-analyzer/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File, "notification")
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	log.Info("Starting Notification Service...")

	notifier := notification.NewEmailNotifier(&cfg.SMTP, log)
	if err := notifier.TestConnection(); err != nil {
		log.Warnf("%v (reports will be logged only)", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReports, "notification-group", log)
	defer consumer.Close()
	log.WithField("topic", cfg.Kafka.TopicReports).Info("Kafka consumer initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notification.NewDispatcher(consumer, notifier, log).Run(ctx)

	log.Info("Notification Service stopped")
}
