// Package pipeline turns analysis requests read from Kafka into published
// reports.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/protocol"
)

// ReportPublisher sends an encoded report keyed by field id
type ReportPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// RequestTracker claims request ids so redeliveries are skipped. Claim
// returns false for a request already reported and an error wrapping
// dedup.ErrClaimHeld while another delivery is still working on it.
type RequestTracker interface {
	Claim(ctx context.Context, requestID, fieldID string) (bool, error)
	Complete(ctx context.Context, requestID, fieldID string) error
	Release(ctx context.Context, requestID string) error
}

// Outcome is what happened to one request
type Outcome int

const (
	OutcomeReported Outcome = iota
	OutcomeRejected
	OutcomeDuplicate
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReported:
		return "reported"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Processor analyzes one request and publishes exactly one report for it
type Processor struct {
	analyzer  *agronomy.Analyzer
	tracker   RequestTracker
	publisher ReportPublisher
	log       *logrus.Entry
}

// NewProcessor creates a processor. tracker may be nil to disable dedup.
func NewProcessor(analyzer *agronomy.Analyzer, tracker RequestTracker, publisher ReportPublisher, log *logrus.Entry) *Processor {
	return &Processor{
		analyzer:  analyzer,
		tracker:   tracker,
		publisher: publisher,
		log:       log,
	}
}

// Process handles one raw request. A returned error means the report could
// not be published and the message must not be committed.
func (p *Processor) Process(ctx context.Context, data []byte) (Outcome, error) {
	req, err := protocol.DecodeAnalysisRequest(data)
	if err != nil {
		peeked := protocol.PeekRequest(data)
		if peeked == nil || peeked.FieldID == "" {
			p.log.WithError(err).Warn("Dropping undecodable analysis request")
			return OutcomeDropped, nil
		}
		peeked.EnsureID(data)
		return p.reject(ctx, peeked, err, false)
	}

	id := req.EnsureID(data)
	log := p.log.WithFields(logrus.Fields{
		"request_id": id,
		"field_id":   req.FieldID,
	})

	claimed := false
	if p.tracker != nil {
		ok, err := p.tracker.Claim(ctx, id, req.FieldID)
		if err != nil {
			return OutcomeDropped, fmt.Errorf("failed to claim request %s: %w", id, err)
		}
		if !ok {
			log.Debug("Skipping request already reported by an earlier delivery")
			return OutcomeDuplicate, nil
		}
		claimed = true
	}

	in, trend, err := req.ToInput()
	if err != nil {
		return p.reject(ctx, req, err, claimed)
	}

	result, err := p.analyzer.Analyze(in)
	if err != nil {
		return p.reject(ctx, req, err, claimed)
	}

	if err := p.publish(ctx, protocol.NewReadyReport(req, in, trend, result), claimed); err != nil {
		return OutcomeDropped, err
	}

	log.WithFields(logrus.Fields{
		"crop":         in.Crop.CropType,
		"growth_stage": result.GrowthStage,
		"crop_health":  result.CropHealth,
		"overall_risk": result.RiskProfile.Overall,
	}).Info("Published analysis report")

	return OutcomeReported, nil
}

// reject publishes an error report for a request the engine refused
func (p *Processor) reject(ctx context.Context, req *protocol.AnalysisRequest, cause error, claimed bool) (Outcome, error) {
	kind := protocol.ErrorKindFor(cause)
	if kind == protocol.ErrorKindInternal {
		if claimed {
			p.release(ctx, req.RequestID)
		}
		return OutcomeDropped, fmt.Errorf("analysis of %s failed: %w", req.RequestID, cause)
	}

	if err := p.publish(ctx, protocol.NewErrorReport(req, kind, cause), claimed); err != nil {
		return OutcomeDropped, err
	}

	p.log.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"field_id":   req.FieldID,
		"error_kind": kind,
	}).WithError(cause).Warn("Rejected analysis request")

	return OutcomeRejected, nil
}

// publish sends report. A claim taken for the request is released on failure
// so a redelivery can retry it.
func (p *Processor) publish(ctx context.Context, report *protocol.AnalysisReport, claimed bool) error {
	data, err := protocol.EncodeAnalysisReport(report)
	if err == nil {
		err = p.publisher.Publish(ctx, report.FieldID, data)
	}
	if err != nil {
		if claimed {
			p.release(ctx, report.RequestID)
		}
		return fmt.Errorf("failed to publish report %s: %w", report.RequestID, err)
	}

	if claimed {
		if err := p.tracker.Complete(ctx, report.RequestID, report.FieldID); err != nil {
			p.log.WithError(err).WithField("request_id", report.RequestID).Warn("Failed to mark request reported")
		}
	}
	return nil
}

func (p *Processor) release(ctx context.Context, requestID string) {
	if err := p.tracker.Release(ctx, requestID); err != nil {
		p.log.WithError(err).WithField("request_id", requestID).Warn("Failed to release request claim")
	}
}
