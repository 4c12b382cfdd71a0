package notification

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/protocol"
	"github.com/smukkama/farm-analyzer/pkg/config"
)

var readyTemplate = template.Must(template.New("ready").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"inc":   func(i int) int { return i + 1 },
}).Parse(`
Field Assessment{{if .FarmName}} - {{.FarmName}}{{end}}
================

Field: {{.FieldID}}
Crop: {{.CropType}}
Growth Stage: {{.Result.GrowthStage}}
Crop Health: {{upper .Result.CropHealth.String}}

Risk Profile
------------
Drought: {{.Result.RiskProfile.Drought}}
Flood:   {{.Result.RiskProfile.Flood}}
Disease: {{.Result.RiskProfile.Disease}}
Heat:    {{.Result.RiskProfile.Heat}}
Overall: {{upper .Result.RiskProfile.Overall.String}}
{{with .Metrics}}
Inputs
------
NDVI: {{printf "%.2f" .NDVI}}  NDMI: {{printf "%.2f" .NDMI}}
Rainfall (30 days): {{printf "%.1f" .TotalRainfall30d}} mm
Forecast rain (7 days): {{printf "%.1f" .ForecastRain7d}} mm
Average temperature: {{printf "%.1f" .AvgTemperature}} C
Rainfall trend: {{.RainfallTrend}}
{{end}}
Recommendations
---------------
{{range $i, $r := .Result.Recommendations}}{{inc $i}}. {{$r}}
{{end}}
Generated: {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}
Request ID: {{.RequestID}}

---
Farm Analysis Reports
`))

var errorTemplate = template.Must(template.New("error").Parse(`
Field Assessment Failed
=======================

Field: {{.FieldID}}
Crop: {{.CropType}}
Reason ({{.ErrorKind}}): {{.Error}}

No assessment was produced. Correct the request and submit it again.

Request ID: {{.RequestID}}

---
Farm Analysis Reports
`))

// EmailNotifier delivers analysis reports by email
type EmailNotifier struct {
	config *config.SMTPConfig
	log    *logrus.Entry
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a notifier. Without SMTP credentials emails are
// only logged.
func NewEmailNotifier(cfg *config.SMTPConfig, log *logrus.Entry) *EmailNotifier {
	return &EmailNotifier{config: cfg, log: log, send: smtp.SendMail}
}

// Render returns the subject and plain-text body for a report
func Render(report *protocol.AnalysisReport) (string, string, error) {
	var subject string
	var tmpl *template.Template

	switch report.Status {
	case protocol.StatusReady:
		if report.Result == nil {
			return "", "", fmt.Errorf("ready report %s has no result", report.RequestID)
		}
		subject = fmt.Sprintf("Field assessment %s: %s health, %s risk",
			report.FieldID, report.Result.CropHealth, report.Result.RiskProfile.Overall)
		tmpl = readyTemplate
	case protocol.StatusError:
		subject = fmt.Sprintf("Field assessment %s failed", report.FieldID)
		tmpl = errorTemplate
	default:
		return "", "", fmt.Errorf("unknown report status: %s", report.Status)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, report); err != nil {
		return "", "", fmt.Errorf("failed to render email template: %w", err)
	}
	return subject, buf.String(), nil
}

// SendReport renders and sends report to its requester, or to the
// configured default recipient
func (e *EmailNotifier) SendReport(report *protocol.AnalysisReport) error {
	subject, body, err := Render(report)
	if err != nil {
		return err
	}

	to := report.Email
	if to == "" {
		to = e.config.To
	}
	return e.sendEmail(to, subject, body)
}

func (e *EmailNotifier) sendEmail(to, subject, body string) error {
	log := e.log.WithFields(logrus.Fields{"to": to, "subject": subject})

	if e.config.Username == "" || e.config.Password == "" {
		log.Info("SMTP not configured, skipping email")
		log.Debug(body)
		return nil
	}

	to = headerValue(to)
	message := fmt.Sprintf("From: %s\r\n", headerValue(e.config.From))
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", headerValue(subject))
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info("Email sent")
	return nil
}

// headerValue folds CR and LF out of a header value so report fields cannot
// start new header lines
func headerValue(v string) string {
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
}

// TestConnection checks that the SMTP server is reachable
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
