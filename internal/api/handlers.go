// Package api exposes synchronous field analysis over HTTP.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/farm-analyzer/internal/agronomy"
	"github.com/smukkama/farm-analyzer/internal/protocol"
)

// Handler contains all HTTP handlers
type Handler struct {
	analyzer *agronomy.Analyzer
	log      *logrus.Entry
}

// NewHandler creates a new handler
func NewHandler(analyzer *agronomy.Analyzer, log *logrus.Entry) *Handler {
	return &Handler{analyzer: analyzer, log: log}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "farm-analyzer",
	})
}

// ListCrops returns the supported crop types
func (h *Handler) ListCrops(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"crops": agronomy.CropTypes,
	})
}

// Analyze runs one analysis and answers with a report. Validation failures
// are 400 and crops without thresholds are 422; both carry an error report.
func (h *Handler) Analyze(c *fiber.Ctx) error {
	req, err := protocol.DecodeAnalysisRequest(c.Body())
	if err != nil {
		peeked := protocol.PeekRequest(c.Body())
		if peeked == nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		peeked.EnsureID(nil)
		return h.reject(c, peeked, err)
	}
	req.EnsureID(nil)

	in, trend, err := req.ToInput()
	if err != nil {
		return h.reject(c, req, err)
	}

	result, err := h.analyzer.Analyze(in)
	if err != nil {
		return h.reject(c, req, err)
	}

	h.log.WithFields(logrus.Fields{
		"request_id":   req.RequestID,
		"field_id":     req.FieldID,
		"crop":         in.Crop.CropType,
		"overall_risk": result.RiskProfile.Overall,
	}).Info("Served analysis")

	return c.JSON(protocol.NewReadyReport(req, in, trend, result))
}

func (h *Handler) reject(c *fiber.Ctx, req *protocol.AnalysisRequest, cause error) error {
	kind := protocol.ErrorKindFor(cause)

	var status int
	switch kind {
	case protocol.ErrorKindValidation:
		status = fiber.StatusBadRequest
	case protocol.ErrorKindUnsupportedCrop:
		status = fiber.StatusUnprocessableEntity
	default:
		return cause
	}

	return c.Status(status).JSON(protocol.NewErrorReport(req, kind, cause))
}
