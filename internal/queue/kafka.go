// Package queue carries analysis requests and reports over Kafka.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer publishes to one topic. Messages are keyed by field id and the
// hash balancer sends every message for a field to the same partition.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer whose client errors go to log
func NewProducer(brokers []string, topic string, log *logrus.Entry) *Producer {
	return &Producer{writer: newWriter(brokers, topic, log)}
}

func newWriter(brokers []string, topic string, log *logrus.Entry) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ErrorLogger:  kafka.LoggerFunc(log.WithField("topic", topic).Errorf),
	}
}

// Publish writes value under key and waits for the brokers to acknowledge it
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic as part of a consumer group. Offsets move only
// through Commit, so a message is redelivered until it is committed.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a group consumer starting from the oldest offset
func NewConsumer(brokers []string, topic, groupID string, log *logrus.Entry) *Consumer {
	return &Consumer{reader: kafka.NewReader(readerConfig(brokers, topic, groupID, log))}
}

func readerConfig(brokers []string, topic, groupID string, log *logrus.Entry) kafka.ReaderConfig {
	log = log.WithFields(logrus.Fields{"topic": topic, "group": groupID})
	return kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		Logger:         kafka.LoggerFunc(log.Debugf),
		ErrorLogger:    kafka.LoggerFunc(log.Errorf),
	}
}

// Consume fetches the next message without committing it
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch from %s: %w", c.reader.Config().Topic, err)
	}
	return msg, nil
}

// Commit synchronously commits msgs. Commits are cumulative per partition:
// committing an offset also commits every earlier offset of that partition.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to commit %d messages: %w", len(msgs), err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns reader statistics since the last call
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// CreateTopic creates a topic through the cluster controller
func CreateTopic(brokers []string, topic string, numPartitions int, replicationFactor int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}

	return nil
}
