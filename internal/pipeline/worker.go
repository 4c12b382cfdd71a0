package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/dedup"
)

var errSkipped = errors.New("skipped after an earlier request for the field failed")

// MessageSource is the consumer side of the request topic
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Handler processes one message payload
type Handler interface {
	Process(ctx context.Context, data []byte) (Outcome, error)
}

// WorkerConfig sizes batches and processing concurrency
type WorkerConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Concurrency   int
	// MaxAttempts bounds retries of a message whose report could not be published.
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Worker collects requests into batches, processes each batch with bounded
// concurrency and commits offsets once the batch is done
type Worker struct {
	source  MessageSource
	handler Handler
	cfg     WorkerConfig
	log     *logrus.Entry
}

// NewWorker creates a worker, filling unset config with defaults
func NewWorker(source MessageSource, handler Handler, cfg WorkerConfig, log *logrus.Entry) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Worker{source: source, handler: handler, cfg: cfg, log: log}
}

// Run consumes until ctx is cancelled, then flushes the pending batch. It
// returns an error when a batch could not be fully processed; offsets past
// the failed message are left uncommitted so the group redelivers them.
func (w *Worker) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	msgCh := make(chan kafka.Message, w.cfg.BatchSize)
	go w.fetch(ctx, msgCh)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []kafka.Message
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := w.flush(flushCtx, batch)
			cancel()
			return err

		case <-ticker.C:
			if len(batch) > 0 {
				w.log.WithField("messages", len(batch)).Debug("Flush interval reached")
				if err := w.flush(ctx, batch); err != nil {
					return err
				}
				batch = nil
			}

		case msg := <-msgCh:
			batch = append(batch, msg)
			if len(batch) >= w.cfg.BatchSize {
				if err := w.flush(ctx, batch); err != nil {
					return err
				}
				batch = nil
			}
		}
	}
}

func (w *Worker) fetch(ctx context.Context, out chan<- kafka.Message) {
	for {
		msg, err := w.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Error("Consumer error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// flush processes batch and commits, per partition, every message before
// the first failure
func (w *Worker) flush(ctx context.Context, batch []kafka.Message) error {
	if len(batch) == 0 {
		return nil
	}

	errs := make([]error, len(batch))
	counts := make(map[Outcome]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, w.cfg.Concurrency)

	for _, group := range byField(batch) {
		wg.Add(1)
		sem <- struct{}{}
		go func(group []int) {
			defer wg.Done()
			defer func() { <-sem }()

			for _, i := range group {
				outcome, err := w.processWithRetry(ctx, batch[i])
				errs[i] = err
				if err != nil {
					// later requests for the field stay uncommitted behind this one
					for _, j := range group {
						if j > i {
							errs[j] = errSkipped
						}
					}
					return
				}
				mu.Lock()
				counts[outcome]++
				mu.Unlock()
			}
		}(group)
	}
	wg.Wait()

	commit, failed := committable(batch, errs)
	if err := w.source.Commit(ctx, commit...); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	w.log.WithFields(logrus.Fields{
		"batch":     len(batch),
		"committed": len(commit),
		"reported":  counts[OutcomeReported],
		"rejected":  counts[OutcomeRejected],
		"duplicate": counts[OutcomeDuplicate],
		"dropped":   counts[OutcomeDropped],
	}).Info("Flushed analysis batch")

	if failed != nil {
		return failed
	}
	return nil
}

func (w *Worker) processWithRetry(ctx context.Context, msg kafka.Message) (Outcome, error) {
	log := w.log.WithFields(logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; {
		outcome, err := w.handler.Process(ctx, msg.Value)
		if err == nil {
			return outcome, nil
		}

		wait := w.cfg.RetryBackoff * time.Duration(attempt)
		if errors.Is(err, dedup.ErrClaimHeld) {
			// The claim lease bounds this wait, so it does not use up attempts.
			log.WithError(err).Debug("Waiting for another delivery of the request")
			wait = w.cfg.RetryBackoff
		} else {
			lastErr = err
			log.WithField("attempt", attempt).WithError(err).Warn("Failed to process analysis request")
			if attempt == w.cfg.MaxAttempts {
				break
			}
			attempt++
		}

		select {
		case <-ctx.Done():
			return OutcomeDropped, ctx.Err()
		case <-time.After(wait):
		}
	}
	return OutcomeDropped, lastErr
}

// byField groups batch indexes by partition and message key, keeping offset
// order inside each group, so requests for one field run one after another
func byField(batch []kafka.Message) [][]int {
	type groupKey struct {
		partition int
		key       string
	}
	index := make(map[groupKey]int)
	var groups [][]int
	for i, msg := range batch {
		k := groupKey{msg.Partition, string(msg.Key)}
		g, ok := index[k]
		if !ok {
			g = len(groups)
			index[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

// committable returns the messages safe to commit: within each partition,
// everything before the first failure. The joined failures are returned too.
func committable(batch []kafka.Message, errs []error) ([]kafka.Message, error) {
	blocked := make(map[int]bool)
	var commit []kafka.Message
	var failures []error

	for i, msg := range batch {
		if errs[i] != nil {
			blocked[msg.Partition] = true
			failures = append(failures, fmt.Errorf("partition %d offset %d: %w", msg.Partition, msg.Offset, errs[i]))
			continue
		}
		if !blocked[msg.Partition] {
			commit = append(commit, msg)
		}
	}

	return commit, errors.Join(failures...)
}
