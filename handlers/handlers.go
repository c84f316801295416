package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"webhook-service/logging"
	"webhook-service/mercadopago"
	"webhook-service/models"
	"webhook-service/notification"
	"webhook-service/service"
	"webhook-service/signature"
)

// PreferenceClient creates checkout preferences and inspects the
// processor account.
type PreferenceClient interface {
	CreatePreference(ctx context.Context, pref *mercadopago.Preference) (*mercadopago.PreferenceResult, error)
	GetAccount(ctx context.Context) (*models.Account, error)
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
}

// WebhookHandler handles the processor's notification callbacks and
// the supporting frontend endpoints.
type WebhookHandler struct {
	pipeline          *service.Pipeline
	verifier          *signature.Verifier
	runner            *service.Runner
	client            PreferenceClient
	signatureEnforced bool
	processAsync      bool
	siteBaseURL       string
	notificationURL   string
}

// Options configures a WebhookHandler.
type Options struct {
	Pipeline          *service.Pipeline
	Verifier          *signature.Verifier
	Runner            *service.Runner
	Client            PreferenceClient
	SignatureEnforced bool
	ProcessAsync      bool
	SiteBaseURL       string
	NotificationURL   string
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(opts Options) *WebhookHandler {
	return &WebhookHandler{
		pipeline:          opts.Pipeline,
		verifier:          opts.Verifier,
		runner:            opts.Runner,
		client:            opts.Client,
		signatureEnforced: opts.SignatureEnforced,
		processAsync:      opts.ProcessAsync,
		siteBaseURL:       opts.SiteBaseURL,
		notificationURL:   opts.NotificationURL,
	}
}

// Webhook handles payment-status notifications from the processor.
// Every terminal path except an enforced signature failure answers
// 200: the processor retries aggressively on anything else.
func (h *WebhookHandler) Webhook(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339)

	switch c.Request.Method {
	case http.MethodOptions:
		setCORSHeaders(c)
		c.Status(http.StatusOK)
		return
	case http.MethodPost:
	default:
		// Acknowledged as success-shaped to stop sender retries.
		c.JSON(http.StatusOK, models.WebhookResponse{
			Success:   false,
			Error:     "method not allowed",
			Timestamp: now,
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		body = nil
	}

	n := notification.Parse(body, c.Request.URL.Query())

	logger := logging.WithTraceContext(span)
	logger.Info("Webhook received",
		zap.String("payment_id", n.PaymentID),
		zap.String("topic", n.Topic),
	)

	if h.verifier != nil && h.verifier.Enabled() {
		sigHeader := c.GetHeader("x-signature")
		requestID := c.GetHeader("x-request-id")

		if !h.verifier.Verify(sigHeader, requestID, n.PaymentID) {
			if h.signatureEnforced {
				logger.Warn("Rejecting webhook with invalid signature",
					zap.String("payment_id", n.PaymentID),
				)
				c.JSON(http.StatusUnauthorized, models.WebhookResponse{
					Success:   false,
					Error:     "invalid signature",
					Timestamp: now,
				})
				return
			}
			logger.Warn("Webhook signature mismatch, enforcement disabled",
				zap.String("payment_id", n.PaymentID),
			)
		}
	}

	if n.PaymentID == "" {
		c.JSON(http.StatusOK, models.WebhookResponse{
			Success:   false,
			Message:   "payment id not found",
			Timestamp: now,
		})
		return
	}

	if h.processAsync && h.runner != nil {
		h.runner.Go("process-notification", func(ctx context.Context) {
			h.pipeline.Process(ctx, n)
		})
		c.JSON(http.StatusOK, models.WebhookResponse{
			Success:   true,
			Message:   "received",
			PaymentID: n.PaymentID,
			Timestamp: now,
		})
		return
	}

	result := h.pipeline.Process(ctx, n)
	span.AddEvent("notification_processed")
	c.JSON(http.StatusOK, resultResponse(result, n.Topic, now))
}

func resultResponse(result service.Result, topic, timestamp string) models.WebhookResponse {
	resp := models.WebhookResponse{
		PaymentID: result.PaymentID,
		Status:    string(result.Status),
		Timestamp: timestamp,
	}

	switch result.Outcome {
	case service.OutcomeMissingID:
		resp.Success = false
		resp.Message = result.Message
	case service.OutcomeNoCredentials, service.OutcomeFetchFailed:
		resp.Success = false
		resp.Error = result.Message
	case service.OutcomeIgnored:
		resp.Success = true
		resp.Message = result.Message
		resp.Topic = topic
	default:
		resp.Success = true
		resp.Message = result.Message
	}
	return resp
}

// CreatePreference handles checkout preference creation for the site
// frontend. Unlike the webhook this endpoint reports real statuses.
func (h *WebhookHandler) CreatePreference(c *gin.Context) {
	setCORSHeaders(c)

	var req models.PreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.PreferenceResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	if req.ID == "" || req.Title == "" || req.Price <= 0 {
		c.JSON(http.StatusBadRequest, models.PreferenceResponse{
			Success: false,
			Error:   "id, title and price are required",
		})
		return
	}

	pref := mercadopago.BuildPreference(&req, h.siteBaseURL, h.notificationURL, time.Now())

	result, err := h.client.CreatePreference(c.Request.Context(), pref)
	if err != nil {
		logging.Error("Preference creation failed",
			zap.Error(err),
			zap.String("item_id", req.ID),
		)
		status := http.StatusBadGateway
		if errors.Is(err, mercadopago.ErrNoAccessToken) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, models.PreferenceResponse{
			Success: false,
			Error:   "failed to create preference",
		})
		return
	}

	c.JSON(http.StatusOK, models.PreferenceResponse{
		Success:          true,
		PreferenceID:     result.ID,
		InitPoint:        result.InitPoint,
		SandboxInitPoint: result.SandboxInitPoint,
	})
}

// PaymentLookup is a diagnostic endpoint exposing a single payment's
// normalized state. Always answers 200 with a success flag.
func (h *WebhookHandler) PaymentLookup(c *gin.Context) {
	paymentID := c.Param("id")

	record, err := h.client.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		var ue *mercadopago.UpstreamError
		if errors.As(err, &ue) {
			message := "payment api error"
			if ue.StatusCode == http.StatusNotFound {
				message = "payment not found"
			}
			c.JSON(http.StatusOK, gin.H{
				"success":    false,
				"payment_id": paymentID,
				"api_status": ue.StatusCode,
				"message":    message,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":    false,
			"payment_id": paymentID,
			"error":      err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"payment_id":   paymentID,
		"payment_info": record,
	})
}

// AccountCheck validates the configured access token against the
// processor's account endpoint.
func (h *WebhookHandler) AccountCheck(c *gin.Context) {
	account, err := h.client.GetAccount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "access token valid",
		"account_info": account,
	})
}

// Preflight answers CORS preflight requests.
func (h *WebhookHandler) Preflight(c *gin.Context) {
	setCORSHeaders(c)
	c.Status(http.StatusOK)
}

// HealthCheck handles health check requests
func (h *WebhookHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func setCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
}
