package queue

import (
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/smukkama/farm-analyzer/internal/logger"
)

func TestReaderConfig_ManualCommit(t *testing.T) {
	cfg := readerConfig([]string{"k1:9092"}, "farm.analysis.requests", "analyzer-group", logger.Discard())

	if cfg.CommitInterval != 0 {
		t.Errorf("Expected synchronous commits, got interval %v", cfg.CommitInterval)
	}
	if cfg.StartOffset != kafka.FirstOffset {
		t.Errorf("Expected a new group to start at the oldest offset, got %d", cfg.StartOffset)
	}
	if cfg.GroupID != "analyzer-group" || cfg.Topic != "farm.analysis.requests" {
		t.Errorf("Unexpected group/topic %q/%q", cfg.GroupID, cfg.Topic)
	}
	if cfg.Logger == nil || cfg.ErrorLogger == nil {
		t.Error("Expected client logs routed to the service logger")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Reader config rejected: %v", err)
	}
}

func TestNewWriter_KeysByField(t *testing.T) {
	w := newWriter([]string{"k1:9092", "k2:9092"}, "farm.analysis.reports", logger.Discard())
	defer w.Close()

	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Errorf("Expected hash balancer so a field stays on one partition, got %T", w.Balancer)
	}
	if w.RequiredAcks != kafka.RequireAll {
		t.Errorf("Expected acks from all replicas, got %v", w.RequiredAcks)
	}
	if w.Async {
		t.Error("Publish must wait for the write to finish")
	}

	// the hash balancer is stable for a key
	b := &kafka.Hash{}
	partitions := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	msg := kafka.Message{Key: []byte("field-42")}
	first := b.Balance(msg, partitions...)
	for i := 0; i < 5; i++ {
		if got := b.Balance(msg, partitions...); got != first {
			t.Fatalf("Partition not stable for a field: %d then %d", first, got)
		}
	}
}

func TestCreateTopic_NoBrokers(t *testing.T) {
	if err := CreateTopic(nil, "t", 1, 1); err == nil {
		t.Error("Expected error without brokers")
	}
}
