package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/dedup"
	"github.com/smukkama/farm-analyzer/internal/logger"
	"github.com/smukkama/farm-analyzer/internal/protocol"
)

type fakePublisher struct {
	mu      sync.Mutex
	keys    []string
	reports []*protocol.AnalysisReport
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	r, err := protocol.DecodeAnalysisReport(value)
	if err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	f.reports = append(f.reports, r)
	return nil
}

type fakeTracker struct {
	mu        sync.Mutex
	claimed   map[string]bool
	completed map[string]bool
	released  []string
	claimErr  error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{claimed: make(map[string]bool), completed: make(map[string]bool)}
}

func (f *fakeTracker) Claim(ctx context.Context, requestID, fieldID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.completed[requestID] {
		return false, nil
	}
	if f.claimed[requestID] {
		return false, dedup.ErrClaimHeld
	}
	f.claimed[requestID] = true
	return true, nil
}

func (f *fakeTracker) Complete(ctx context.Context, requestID, fieldID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[requestID] = true
	return nil
}

func (f *fakeTracker) Release(ctx context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, requestID)
	f.released = append(f.released, requestID)
	return nil
}

const validRequest = `{
	"request_id": "0b9d8c7e-1f2a-4b3c-8d4e-5f6a7b8c9d0e",
	"field_id": "field-7",
	"crop_type": "corn",
	"planting_date": "2024-04-15",
	"as_of": "2024-07-01",
	"weather": {
		"total_rainfall_30d": 10,
		"avg_temperature": 30,
		"forecast_rain_7d": 2,
		"drought_risk": true,
		"flood_risk": false,
		"temperature_stress": false
	},
	"indices": {"ndvi": 0.25, "ndmi": 0.15}
}`

func newTestProcessor(t *testing.T, tracker RequestTracker, pub ReportPublisher) *Processor {
	t.Helper()
	an, err := agronomy.NewAnalyzer(agronomy.DefaultThresholds(),
		agronomy.WithClock(func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return NewProcessor(an, tracker, pub, logger.Discard())
}

func TestProcess_PublishesReadyReport(t *testing.T) {
	pub := &fakePublisher{}
	tracker := newFakeTracker()
	p := newTestProcessor(t, tracker, pub)

	outcome, err := p.Process(context.Background(), []byte(validRequest))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeReported {
		t.Errorf("Expected reported, got %s", outcome)
	}
	if len(pub.reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(pub.reports))
	}

	r := pub.reports[0]
	if pub.keys[0] != "field-7" {
		t.Errorf("Expected report keyed by field id, got %q", pub.keys[0])
	}
	if r.Status != protocol.StatusReady || r.Result == nil {
		t.Fatalf("Unexpected report %+v", r)
	}
	if r.Result.GrowthStage != agronomy.StageReproductive {
		t.Errorf("Expected reproductive stage, got %s", r.Result.GrowthStage)
	}
	if r.Result.CropHealth != agronomy.HealthPoor {
		t.Errorf("Expected poor health, got %s", r.Result.CropHealth)
	}
	if r.Result.RiskProfile.Drought != agronomy.RiskHigh {
		t.Errorf("Expected high drought risk, got %s", r.Result.RiskProfile.Drought)
	}
	if !tracker.completed["0b9d8c7e-1f2a-4b3c-8d4e-5f6a7b8c9d0e"] {
		t.Error("Expected request marked complete")
	}
}

func TestProcess_SkipsDuplicates(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProcessor(t, newFakeTracker(), pub)

	if _, err := p.Process(context.Background(), []byte(validRequest)); err != nil {
		t.Fatalf("First Process failed: %v", err)
	}
	outcome, err := p.Process(context.Background(), []byte(validRequest))
	if err != nil {
		t.Fatalf("Second Process failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("Expected duplicate, got %s", outcome)
	}
	if len(pub.reports) != 1 {
		t.Errorf("Expected a single report, got %d", len(pub.reports))
	}
}

func TestProcess_ValidationErrorReport(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProcessor(t, newFakeTracker(), pub)

	body := `{"field_id":"field-9","crop_type":"corn","weather":{"avg_temperature":20},"indices":{"ndvi":0.5,"ndmi":0.2}}`
	outcome, err := p.Process(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeRejected {
		t.Errorf("Expected rejected, got %s", outcome)
	}
	if len(pub.reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(pub.reports))
	}
	r := pub.reports[0]
	if r.Status != protocol.StatusError || r.ErrorKind != protocol.ErrorKindValidation {
		t.Errorf("Unexpected error report %+v", r)
	}
	if r.RequestID == "" {
		t.Error("Expected a generated request id on the error report")
	}
	if r.Result != nil {
		t.Error("Error report must not carry a result")
	}
}

func TestProcess_EnvelopeErrorWithoutClaim(t *testing.T) {
	pub := &fakePublisher{}
	tracker := newFakeTracker()
	p := newTestProcessor(t, tracker, pub)

	outcome, err := p.Process(context.Background(), []byte(`{"request_id":"bad","field_id":"field-1"}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeRejected {
		t.Errorf("Expected rejected, got %s", outcome)
	}
	if len(tracker.claimed) != 0 || len(tracker.completed) != 0 {
		t.Errorf("Envelope errors must not touch the tracker: %+v", tracker)
	}
	if pub.reports[0].RequestID == "bad" {
		t.Error("Invalid request id should be replaced")
	}
}

func TestProcess_UnsupportedCropReport(t *testing.T) {
	pub := &fakePublisher{}
	th := agronomy.DefaultThresholds()
	th.Health.Strict = true
	an, err := agronomy.NewAnalyzer(th)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	p := NewProcessor(an, nil, pub, logger.Discard())

	body := `{"field_id":"f","crop_type":"other","weather":{"total_rainfall_30d":40,"avg_temperature":20,"forecast_rain_7d":5,"drought_risk":false,"flood_risk":false,"temperature_stress":false},"indices":{"ndvi":0.5,"ndmi":0.3}}`
	outcome, err := p.Process(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeRejected {
		t.Errorf("Expected rejected, got %s", outcome)
	}
	if pub.reports[0].ErrorKind != protocol.ErrorKindUnsupportedCrop {
		t.Errorf("Expected unsupported_crop, got %q", pub.reports[0].ErrorKind)
	}
}

func TestProcess_DropsGarbage(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProcessor(t, newFakeTracker(), pub)

	outcome, err := p.Process(context.Background(), []byte("not json"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome != OutcomeDropped || len(pub.reports) != 0 {
		t.Errorf("Expected dropped with no report, got %s and %d reports", outcome, len(pub.reports))
	}
}

func TestProcess_PublishFailureReleasesClaim(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	tracker := newFakeTracker()
	p := newTestProcessor(t, tracker, pub)

	if _, err := p.Process(context.Background(), []byte(validRequest)); err == nil {
		t.Fatal("Expected publish error")
	}
	if len(tracker.released) != 1 {
		t.Fatalf("Expected claim released, got %v", tracker.released)
	}
	if tracker.claimed[tracker.released[0]] {
		t.Error("Claim still held after release")
	}

	pub.err = nil
	outcome, err := p.Process(context.Background(), []byte(validRequest))
	if err != nil || outcome != OutcomeReported {
		t.Errorf("Expected retry to report, got %s, %v", outcome, err)
	}
}

func TestProcess_ClaimFailure(t *testing.T) {
	tracker := newFakeTracker()
	tracker.claimErr = errors.New("redis down")
	p := newTestProcessor(t, tracker, &fakePublisher{})

	if _, err := p.Process(context.Background(), []byte(validRequest)); err == nil {
		t.Error("Expected claim error to surface")
	}
}

func TestProcess_HeldClaimIsRetried(t *testing.T) {
	pub := &fakePublisher{}
	tracker := newFakeTracker()
	tracker.claimed["0b9d8c7e-1f2a-4b3c-8d4e-5f6a7b8c9d0e"] = true
	p := newTestProcessor(t, tracker, pub)

	outcome, err := p.Process(context.Background(), []byte(validRequest))
	if !errors.Is(err, dedup.ErrClaimHeld) {
		t.Fatalf("Expected ErrClaimHeld so the message stays uncommitted, got %s, %v", outcome, err)
	}
	if outcome == OutcomeDuplicate {
		t.Error("An unfinished claim must not count as a duplicate")
	}
	if len(pub.reports) != 0 {
		t.Errorf("Expected no report while the claim is held, got %d", len(pub.reports))
	}

	// the other delivery died and its lease ran out
	delete(tracker.claimed, "0b9d8c7e-1f2a-4b3c-8d4e-5f6a7b8c9d0e")
	outcome, err = p.Process(context.Background(), []byte(validRequest))
	if err != nil || outcome != OutcomeReported {
		t.Errorf("Expected the redelivery to take over, got %s, %v", outcome, err)
	}
}

func TestProcess_RequestWithoutIDIsDeduplicated(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProcessor(t, newFakeTracker(), pub)

	body := strings.Replace(validRequest, `"request_id": "0b9d8c7e-1f2a-4b3c-8d4e-5f6a7b8c9d0e",`, "", 1)
	if _, err := p.Process(context.Background(), []byte(body)); err != nil {
		t.Fatalf("First Process failed: %v", err)
	}
	outcome, err := p.Process(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("Second Process failed: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("Expected redelivery to be a duplicate, got %s", outcome)
	}
	if len(pub.reports) != 1 || pub.reports[0].RequestID == "" {
		t.Errorf("Expected one report with a derived id, got %+v", pub.reports)
	}
}
