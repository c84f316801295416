// Package mercadopago is a thin client for the payment processor's
// REST API: payment lookups, checkout preference creation and account
// introspection.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"webhook-service/models"
)

// ErrNoAccessToken is returned when the client was built without credentials.
var ErrNoAccessToken = errors.New("access token not configured")

// UpstreamError is a non-2xx response from the processor API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("payment api returned status %d", e.StatusCode)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound
}

// Client talks to the processor REST API with bearer-token auth.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a processor API client.
func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// payment mirrors the processor's payment detail payload.
type payment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	TransactionAmount float64     `json:"transaction_amount"`
	CurrencyID        string      `json:"currency_id"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Installments      int         `json:"installments"`
	ExternalReference string      `json:"external_reference"`
	Payer             struct {
		Email          string `json:"email"`
		Identification struct {
			Type   string `json:"type"`
			Number string `json:"number"`
		} `json:"identification"`
		Phone struct {
			AreaCode string `json:"area_code"`
			Number   string `json:"number"`
		} `json:"phone"`
	} `json:"payer"`
}

// GetPayment fetches authoritative payment details for the given id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	if c.accessToken == "" {
		return nil, ErrNoAccessToken
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/v1/payments/%s", c.baseURL, paymentID))
	if err != nil {
		return nil, err
	}

	var p payment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode payment %s: %w", paymentID, err)
	}

	return &models.PaymentRecord{
		ID:                paymentID,
		Status:            models.NormalizeStatus(p.Status),
		StatusDetail:      p.StatusDetail,
		Amount:            p.TransactionAmount,
		Currency:          p.CurrencyID,
		Email:             p.Payer.Email,
		NationalID:        p.Payer.Identification.Number,
		PhoneAreaCode:     p.Payer.Phone.AreaCode,
		PhoneNumber:       p.Payer.Phone.Number,
		ExternalReference: p.ExternalReference,
		PaymentMethod:     p.PaymentMethodID,
		Installments:      p.Installments,
	}, nil
}

// GetAccount validates the access token via the processor's account endpoint.
func (c *Client) GetAccount(ctx context.Context) (*models.Account, error) {
	if c.accessToken == "" {
		return nil, ErrNoAccessToken
	}

	body, err := c.get(ctx, c.baseURL+"/users/me")
	if err != nil {
		return nil, err
	}

	var account models.Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &account, nil
}

// CreatePreference creates a checkout preference and returns the
// processor's preference id and checkout URLs.
func (c *Client) CreatePreference(ctx context.Context, pref *Preference) (*PreferenceResult, error) {
	if c.accessToken == "" {
		return nil, ErrNoAccessToken
	}

	payload, err := json.Marshal(pref)
	if err != nil {
		return nil, fmt.Errorf("encode preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/checkout/preferences", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result PreferenceResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode preference result: %w", err)
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call payment api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payment api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
