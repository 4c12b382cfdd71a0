package notification

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/logger"
	"github.com/smukkama/farm-analyzer/internal/protocol"
	"github.com/smukkama/farm-analyzer/internal/weather"
	"github.com/smukkama/farm-analyzer/pkg/config"
)

func readyReport() *protocol.AnalysisReport {
	return &protocol.AnalysisReport{
		RequestID: "req-1",
		FieldID:   "field-42",
		FarmName:  "North Acre",
		Email:     "grower@example.com",
		CropType:  "wheat",
		Status:    protocol.StatusReady,
		Result: &agronomy.AnalysisResult{
			GrowthStage: agronomy.StageVegetative,
			CropHealth:  agronomy.HealthModerate,
			RiskProfile: agronomy.RiskProfile{
				Drought: agronomy.RiskHigh,
				Flood:   agronomy.RiskLow,
				Disease: agronomy.RiskLow,
				Heat:    agronomy.RiskLow,
				Overall: agronomy.RiskHigh,
			},
			Recommendations: []string{"Irrigate now", "Scout the field"},
		},
		Metrics: &protocol.MetricsEcho{
			NDVI:             0.45,
			NDMI:             0.15,
			TotalRainfall30d: 12,
			RainfallTrend:    weather.TrendDecreasing,
		},
		GeneratedAt: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestRender_Ready(t *testing.T) {
	subject, body, err := Render(readyReport())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if subject != "Field assessment field-42: Moderate health, High risk" {
		t.Errorf("Unexpected subject %q", subject)
	}
	for _, want := range []string{
		"Field Assessment - North Acre",
		"Growth Stage: Vegetative",
		"Crop Health: MODERATE",
		"Drought: High",
		"Overall: HIGH",
		"NDVI: 0.45",
		"Rainfall trend: decreasing",
		"1. Irrigate now",
		"2. Scout the field",
		"Request ID: req-1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Body missing %q:\n%s", want, body)
		}
	}
}

func TestRender_Error(t *testing.T) {
	report := &protocol.AnalysisReport{
		RequestID: "req-2",
		FieldID:   "field-9",
		CropType:  "barley",
		Status:    protocol.StatusError,
		ErrorKind: protocol.ErrorKindValidation,
		Error:     `invalid crop_type: unknown crop type "barley"`,
	}
	subject, body, err := Render(report)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if subject != "Field assessment field-9 failed" {
		t.Errorf("Unexpected subject %q", subject)
	}
	if !strings.Contains(body, "Reason (validation)") || !strings.Contains(body, "barley") {
		t.Errorf("Unexpected body:\n%s", body)
	}
}

func TestRender_RejectsBadReports(t *testing.T) {
	if _, _, err := Render(&protocol.AnalysisReport{Status: "pending"}); err == nil {
		t.Error("Expected error for unknown status")
	}
	if _, _, err := Render(&protocol.AnalysisReport{Status: protocol.StatusReady}); err == nil {
		t.Error("Expected error for ready report without result")
	}
}

func TestSendReport(t *testing.T) {
	cfg := &config.SMTPConfig{Host: "smtp.test", Port: 2525, Username: "u", Password: "p", From: "reports@test", To: "fallback@test"}
	n := NewEmailNotifier(cfg, logger.Discard())

	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := n.SendReport(readyReport()); err != nil {
		t.Fatalf("SendReport failed: %v", err)
	}
	if gotAddr != "smtp.test:2525" {
		t.Errorf("Unexpected address %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "grower@example.com" {
		t.Errorf("Expected requester as recipient, got %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Field assessment field-42") {
		t.Errorf("Message missing subject header:\n%s", gotMsg)
	}

	r := readyReport()
	r.Email = ""
	if err := n.SendReport(r); err != nil {
		t.Fatalf("SendReport failed: %v", err)
	}
	if gotTo[0] != "fallback@test" {
		t.Errorf("Expected fallback recipient, got %v", gotTo)
	}

	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 busy") }
	if err := n.SendReport(readyReport()); err == nil {
		t.Error("Expected send error")
	}
}

func TestSendReport_Unconfigured(t *testing.T) {
	n := NewEmailNotifier(&config.SMTPConfig{}, logger.Discard())
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send must not be called without credentials")
		return nil
	}
	if err := n.SendReport(readyReport()); err != nil {
		t.Errorf("Expected nil when SMTP is unconfigured, got %v", err)
	}
}

func TestSendReport_HeaderInjection(t *testing.T) {
	cfg := &config.SMTPConfig{Host: "smtp.test", Port: 25, Username: "u", Password: "p", From: "reports@test"}
	n := NewEmailNotifier(cfg, logger.Discard())

	var gotTo []string
	var gotMsg string
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotTo, gotMsg = to, string(msg)
		return nil
	}

	r := readyReport()
	r.FieldID = "f1\r\nBcc: attacker@evil.example"
	r.Email = "grower@example.com\r\nCc: other@evil.example"
	if err := n.SendReport(r); err != nil {
		t.Fatalf("SendReport failed: %v", err)
	}

	headers := gotMsg[:strings.Index(gotMsg, "\r\n\r\n")]
	for _, line := range strings.Split(headers, "\r\n") {
		if strings.HasPrefix(line, "Bcc:") || strings.HasPrefix(line, "Cc:") {
			t.Errorf("Report field started a new header line %q", line)
		}
	}
	if !strings.Contains(headers, "Subject: Field assessment f1 Bcc: attacker@evil.example") {
		t.Errorf("Expected line breaks folded into the subject:\n%s", headers)
	}
	if strings.ContainsAny(gotTo[0], "\r\n") {
		t.Errorf("Recipient still contains a line break: %q", gotTo[0])
	}
}

func TestHeaderValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\r\nb", "a b"},
		{"a\nb\rc", "a b c"},
		{"\r\n", ""},
	}
	for _, tc := range tests {
		if got := headerValue(tc.in); got != tc.want {
			t.Errorf("headerValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
