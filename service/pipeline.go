// Package service implements the webhook processing pipeline: topic
// gating, deduplication, authoritative payment lookup and downstream
// confirmation forwarding.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"webhook-service/forwarder"
	"webhook-service/logging"
	"webhook-service/mercadopago"
	"webhook-service/models"
	"webhook-service/monitoring"
	"webhook-service/notification"
)

// Outcome is the terminal state of a processed notification.
type Outcome string

const (
	// OutcomeMissingID means no payment id could be extracted.
	OutcomeMissingID Outcome = "missing_id"
	// OutcomeIgnored means the topic is not a payment event.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate means the id was already handled inside the dedup window.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeNoCredentials means the access token is not configured.
	OutcomeNoCredentials Outcome = "no_credentials"
	// OutcomeFetchFailed means the processor API lookup failed.
	OutcomeFetchFailed Outcome = "fetch_failed"
	// OutcomeSkipped means the payment exists but is not approved,
	// or was not found upstream.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeForwarded means a confirmation was sent downstream.
	OutcomeForwarded Outcome = "forwarded"
)

// Result describes how the pipeline disposed of a notification.
type Result struct {
	Outcome   Outcome
	PaymentID string
	Status    models.PaymentStatus
	Message   string
}

// PaymentFetcher retrieves authoritative payment details.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
}

// ConfirmationForwarder dispatches confirmations downstream.
type ConfirmationForwarder interface {
	Forward(ctx context.Context, rec *models.ConfirmationRecord) error
}

// DedupCache tracks recently processed payment ids.
type DedupCache interface {
	ShouldProcess(paymentID string) bool
	MarkProcessed(paymentID string)
}

// Pipeline composes the webhook processing stages.
type Pipeline struct {
	tracer    trace.Tracer
	payments  PaymentFetcher
	forwarder ConfirmationForwarder
	dedup     DedupCache

	now func() time.Time
}

// NewPipeline creates a pipeline. A nil dedup cache disables
// deduplication.
func NewPipeline(tracer trace.Tracer, payments PaymentFetcher, fwd ConfirmationForwarder, dedup DedupCache) *Pipeline {
	return &Pipeline{
		tracer:    tracer,
		payments:  payments,
		forwarder: fwd,
		dedup:     dedup,
		now:       time.Now,
	}
}

// Process runs a parsed notification through the pipeline and returns
// its terminal outcome. Upstream failures degrade to skip outcomes;
// only the caller decides HTTP status codes.
func (p *Pipeline) Process(ctx context.Context, n models.Notification) Result {
	ctx, span := p.tracer.Start(ctx, "process_notification")
	defer span.End()

	span.SetAttributes(
		attribute.String("notification.payment_id", n.PaymentID),
		attribute.String("notification.topic", n.Topic),
	)

	logger := logging.WithTraceContext(span)

	result := p.run(ctx, span, logger, n)

	monitoring.WebhookCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("topic", n.Topic),
			attribute.String("outcome", string(result.Outcome)),
		),
	)
	span.SetAttributes(attribute.String("notification.outcome", string(result.Outcome)))

	return result
}

func (p *Pipeline) run(ctx context.Context, span trace.Span, logger *zap.Logger, n models.Notification) Result {
	if n.PaymentID == "" {
		logger.Warn("Notification without payment id")
		return Result{Outcome: OutcomeMissingID, Message: "payment id not found"}
	}

	if !notification.IsPaymentTopic(n.Topic) {
		logger.Info("Ignoring non-payment event", zap.String("topic", n.Topic))
		return Result{Outcome: OutcomeIgnored, PaymentID: n.PaymentID, Message: "event ignored"}
	}

	if p.dedup != nil {
		if !p.dedup.ShouldProcess(n.PaymentID) {
			logger.Info("Duplicate notification inside dedup window",
				zap.String("payment_id", n.PaymentID),
			)
			return Result{Outcome: OutcomeDuplicate, PaymentID: n.PaymentID, Message: "already processed"}
		}
		p.dedup.MarkProcessed(n.PaymentID)
	}

	logger.Info("Fetching payment details", zap.String("payment_id", n.PaymentID))

	start := p.now()
	record, err := p.payments.GetPayment(ctx, n.PaymentID)
	monitoring.PaymentAPIDuration.Record(ctx, p.now().Sub(start).Seconds(),
		metric.WithAttributes(attribute.Bool("error", err != nil)),
	)

	if err != nil {
		return p.fetchFailure(logger, n.PaymentID, err)
	}

	span.SetAttributes(attribute.String("payment.status", string(record.Status)))

	if record.Status != models.StatusApproved {
		logger.Info("Payment not approved, skipping forward",
			zap.String("payment_id", n.PaymentID),
			zap.String("status", string(record.Status)),
			zap.String("status_detail", record.StatusDetail),
		)
		return Result{
			Outcome:   OutcomeSkipped,
			PaymentID: n.PaymentID,
			Status:    record.Status,
			Message:   "payment not approved",
		}
	}

	confirmation := forwarder.BuildConfirmation(record, p.now())
	if err := p.forwarder.Forward(ctx, confirmation); err != nil {
		// Fire and forget: a failed forward is a final, logged outcome.
		logger.Error("Confirmation forward failed",
			zap.Error(err),
			zap.String("payment_id", n.PaymentID),
		)
		monitoring.ForwardCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", "failed")),
		)
	} else {
		monitoring.ForwardCounter.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", "sent")),
		)
	}

	logger.Info("Payment approved and processed",
		zap.String("payment_id", n.PaymentID),
		zap.Float64("amount", record.Amount),
	)

	return Result{
		Outcome:   OutcomeForwarded,
		PaymentID: n.PaymentID,
		Status:    record.Status,
		Message:   "webhook processed",
	}
}

// fetchFailure maps upstream errors to soft outcomes. The webhook is
// still acknowledged; only the forward is skipped.
func (p *Pipeline) fetchFailure(logger *zap.Logger, paymentID string, err error) Result {
	if errors.Is(err, mercadopago.ErrNoAccessToken) {
		logger.Error("Access token not configured", zap.String("payment_id", paymentID))
		return Result{Outcome: OutcomeNoCredentials, PaymentID: paymentID, Message: "access token not configured"}
	}

	if mercadopago.IsNotFound(err) {
		// Test notifications reference payments that do not exist.
		logger.Warn("Payment not found upstream", zap.String("payment_id", paymentID))
		return Result{Outcome: OutcomeSkipped, PaymentID: paymentID, Message: "payment not found"}
	}

	logger.Error("Payment lookup failed",
		zap.Error(err),
		zap.String("payment_id", paymentID),
	)
	return Result{Outcome: OutcomeFetchFailed, PaymentID: paymentID, Message: "failed to fetch payment"}
}
