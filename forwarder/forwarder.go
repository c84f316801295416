// Package forwarder dispatches normalized payment confirmations to the
// downstream automation sink. Delivery is best-effort: failures are
// logged and never surfaced to the webhook path.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"webhook-service/logging"
	"webhook-service/models"
)

// Forwarder posts confirmation records to a configured sink URL.
type Forwarder struct {
	sinkURL    string
	httpClient *http.Client
}

// New creates a forwarder for the given sink URL. An empty URL
// disables forwarding.
func New(sinkURL string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Forwarder{
		sinkURL: sinkURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// BuildConfirmation derives the outbound confirmation from a payment
// record. The phone is the concatenated area code and number, or empty
// when either part is missing.
func BuildConfirmation(p *models.PaymentRecord, now time.Time) *models.ConfirmationRecord {
	phone := ""
	if p.PhoneAreaCode != "" && p.PhoneNumber != "" {
		phone = p.PhoneAreaCode + p.PhoneNumber
	}

	return &models.ConfirmationRecord{
		PaymentID:         p.ID,
		Status:            string(p.Status),
		CPF:               p.NationalID,
		Telefone:          phone,
		Email:             p.Email,
		Valor:             p.Amount,
		ExternalReference: p.ExternalReference,
		PaymentMethod:     p.PaymentMethod,
		Installments:      p.Installments,
		Timestamp:         now.UTC().Format(time.RFC3339),
	}
}

// Forward posts a confirmation to the sink. The returned error is for
// logging only; callers must not fail the request on it.
func (f *Forwarder) Forward(ctx context.Context, rec *models.ConfirmationRecord) error {
	if f.sinkURL == "" {
		return fmt.Errorf("downstream sink url not configured")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode confirmation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.sinkURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Warn("Downstream sink rejected confirmation",
			zap.String("payment_id", rec.PaymentID),
			zap.Int("status_code", resp.StatusCode),
		)
		return fmt.Errorf("downstream sink returned status %d", resp.StatusCode)
	}

	logging.Info("Confirmation forwarded",
		zap.String("payment_id", rec.PaymentID),
		zap.Float64("valor", rec.Valor),
		zap.Int("status_code", resp.StatusCode),
	)
	return nil
}
