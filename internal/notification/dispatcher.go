package notification

import (
	"context"
	"errors"
	"net/textproto"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/protocol"
)

// ReportSource is the consumer side of the report topic
type ReportSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// ReportSender delivers one decoded report
type ReportSender interface {
	SendReport(report *protocol.AnalysisReport) error
}

// Dispatcher reads reports and sends them one at a time. A message is only
// committed once its report was sent or is known to be undeliverable, so a
// failed send blocks the partition instead of being skipped by a later commit.
type Dispatcher struct {
	source     ReportSource
	sender     ReportSender
	log        *logrus.Entry
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewDispatcher creates a dispatcher retrying failed sends from one second
// up to one minute apart
func NewDispatcher(source ReportSource, sender ReportSender, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		source:     source,
		sender:     sender,
		log:        log,
		minBackoff: time.Second,
		maxBackoff: time.Minute,
	}
}

// Run dispatches until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	backoff := d.minBackoff
	for {
		msg, err := d.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.WithError(err).WithField("retry_in", backoff).Error("Failed to consume report")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = d.next(backoff)
			continue
		}
		backoff = d.minBackoff

		if !d.deliver(ctx, msg) {
			return
		}
		if err := d.source.Commit(ctx, msg); err != nil {
			d.log.WithError(err).WithField("offset", msg.Offset).Error("Failed to commit offset")
		}
	}
}

// deliver sends the report in msg, retrying until it goes out, is rejected
// permanently, or ctx ends. It returns false only when ctx ended first.
func (d *Dispatcher) deliver(ctx context.Context, msg kafka.Message) bool {
	report, err := protocol.DecodeAnalysisReport(msg.Value)
	if err != nil {
		d.log.WithError(err).WithField("offset", msg.Offset).Warn("Skipping undecodable report")
		return true
	}

	log := d.log.WithFields(logrus.Fields{
		"request_id": report.RequestID,
		"field_id":   report.FieldID,
	})

	backoff := d.minBackoff
	for attempt := 1; ; attempt++ {
		err := d.sender.SendReport(report)
		if err == nil {
			return true
		}
		if permanent(err) {
			log.WithError(err).Error("Report rejected by mail server, skipping")
			return true
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": backoff,
		}).Warn("Failed to send report")
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = d.next(backoff)
	}
}

func (d *Dispatcher) next(backoff time.Duration) time.Duration {
	backoff *= 2
	if backoff > d.maxBackoff {
		return d.maxBackoff
	}
	return backoff
}

// permanent reports whether the SMTP server refused the message with a 5xx
// reply, which retrying will not change
func permanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
