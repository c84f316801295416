package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"webhook-service/dedup"
	"webhook-service/mercadopago"
	"webhook-service/models"
	"webhook-service/service"
	"webhook-service/signature"
)

type clientStub struct {
	mu         sync.Mutex
	fetchCalls int
	record     *models.PaymentRecord
	fetchErr   error
	prefResult *mercadopago.PreferenceResult
	prefErr    error
	account    *models.Account
	accountErr error
}

func (c *clientStub) GetPayment(ctx context.Context, paymentID string) (*models.PaymentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchCalls++
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.record, nil
}

func (c *clientStub) CreatePreference(ctx context.Context, pref *mercadopago.Preference) (*mercadopago.PreferenceResult, error) {
	if c.prefErr != nil {
		return nil, c.prefErr
	}
	return c.prefResult, nil
}

func (c *clientStub) GetAccount(ctx context.Context) (*models.Account, error) {
	if c.accountErr != nil {
		return nil, c.accountErr
	}
	return c.account, nil
}

type forwarderStub struct {
	mu    sync.Mutex
	calls int
	last  *models.ConfirmationRecord
}

func (f *forwarderStub) Forward(ctx context.Context, rec *models.ConfirmationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = rec
	return nil
}

type testEnv struct {
	router    *gin.Engine
	client    *clientStub
	forwarder *forwarderStub
}

func newEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := &clientStub{}
	fwd := &forwarderStub{}

	if opts.Client == nil {
		opts.Client = client
	}
	if opts.Pipeline == nil {
		opts.Pipeline = service.NewPipeline(otel.Tracer("test"), client, fwd, dedup.New(10*time.Minute))
	}

	h := NewWebhookHandler(opts)

	r := gin.New()
	r.Any("/api/webhook", h.Webhook)
	r.POST("/api/preferences", h.CreatePreference)
	r.GET("/api/payments/:id", h.PaymentLookup)
	r.GET("/api/account", h.AccountCheck)
	r.GET("/health", h.HealthCheck)

	return &testEnv{router: r, client: client, forwarder: fwd}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) models.WebhookResponse {
	t.Helper()
	var resp models.WebhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestWebhookApprovedPayment(t *testing.T) {
	env := newEnv(t, Options{})
	env.client.record = &models.PaymentRecord{
		ID:     "123",
		Status: models.StatusApproved,
		Amount: 50.0,
	}

	body := bytes.NewBufferString(`{"action":"payment.updated","data":{"id":"123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", body)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Fatalf("success = false: %+v", resp)
	}
	if resp.PaymentID != "123" {
		t.Errorf("payment_id = %q", resp.PaymentID)
	}
	if env.forwarder.calls != 1 {
		t.Fatalf("forwarder calls = %d, want 1", env.forwarder.calls)
	}
	if env.forwarder.last.Valor != 50.0 {
		t.Errorf("forwarded valor = %v, want 50.0", env.forwarder.last.Valor)
	}
}

func TestWebhookNonPostAcknowledged(t *testing.T) {
	env := newEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/webhook", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for non-POST", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Success {
		t.Fatalf("success = true, want false for method not allowed")
	}
	if env.client.fetchCalls != 0 {
		t.Fatalf("fetcher must not run for non-POST")
	}
}

func TestWebhookOptionsPreflight(t *testing.T) {
	env := newEnv(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/webhook", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for OPTIONS", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("OPTIONS body = %q, want empty", w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestWebhookNonPaymentTopicIgnored(t *testing.T) {
	env := newEnv(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/webhook?topic=merchant_order&id=5", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Fatalf("success = false, non-payment events are acknowledged")
	}
	if env.client.fetchCalls != 0 {
		t.Fatalf("fetcher called %d times, want 0", env.client.fetchCalls)
	}
}

func TestWebhookMissingPaymentID(t *testing.T) {
	env := newEnv(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Success {
		t.Fatalf("success = true, want false without a payment id")
	}
}

func TestWebhookUpstream404Acknowledged(t *testing.T) {
	env := newEnv(t, Options{})
	env.client.fetchErr = &mercadopago.UpstreamError{StatusCode: http.StatusNotFound}

	body := bytes.NewBufferString(`{"action":"payment.updated","data":{"id":"999"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", body)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for upstream 404", w.Code)
	}
	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Fatalf("success = false, upstream 404 is a soft failure")
	}
	if env.forwarder.calls != 0 {
		t.Fatalf("forwarder must not run for a missing payment")
	}
}

func signManifest(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookEnforcedSignatureRejectsInvalid(t *testing.T) {
	env := newEnv(t, Options{
		Verifier:          signature.NewVerifier("secret"),
		SignatureEnforced: true,
	})

	body := bytes.NewBufferString(`{"action":"payment.updated","data":{"id":"123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", body)
	req.Header.Set("x-signature", "ts=1,v1=bogus")
	req.Header.Set("x-request-id", "req-1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for enforced invalid signature", w.Code)
	}
	if env.client.fetchCalls != 0 {
		t.Fatalf("fetcher must not run after signature rejection")
	}
}

func TestWebhookEnforcedSignatureAcceptsValid(t *testing.T) {
	env := newEnv(t, Options{
		Verifier:          signature.NewVerifier("secret"),
		SignatureEnforced: true,
	})
	env.client.record = &models.PaymentRecord{ID: "123", Status: models.StatusApproved, Amount: 10}

	digest := signManifest("secret", "123", "req-1", "1700000000")

	body := bytes.NewBufferString(`{"action":"payment.updated","data":{"id":"123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", body)
	req.Header.Set("x-signature", fmt.Sprintf("ts=1700000000,v1=%s", digest))
	req.Header.Set("x-request-id", "req-1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for valid signature", w.Code)
	}
	if env.forwarder.calls != 1 {
		t.Fatalf("forwarder calls = %d, want 1", env.forwarder.calls)
	}
}

func TestWebhookUnenforcedSignatureMismatchContinues(t *testing.T) {
	env := newEnv(t, Options{
		Verifier:          signature.NewVerifier("secret"),
		SignatureEnforced: false,
	})
	env.client.record = &models.PaymentRecord{ID: "123", Status: models.StatusApproved, Amount: 10}

	body := bytes.NewBufferString(`{"action":"payment.updated","data":{"id":"123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", body)
	req.Header.Set("x-signature", "ts=1,v1=bogus")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when enforcement is off", w.Code)
	}
	if env.forwarder.calls != 1 {
		t.Fatalf("pipeline must still run when enforcement is off")
	}
}

func TestWebhookAsyncModeAcknowledgesImmediately(t *testing.T) {
	runner := service.NewRunner(5 * time.Second)
	env := newEnv(t, Options{
		Runner:       runner,
		ProcessAsync: true,
	})
	env.client.record = &models.PaymentRecord{ID: "123", Status: models.StatusApproved, Amount: 10}

	body := bytes.NewBufferString(`{"action":"payment.updated","data":{"id":"123"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", body)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeResponse(t, w)
	if !resp.Success || resp.Message != "received" {
		t.Fatalf("async ack = %+v", resp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := runner.Wait(ctx); err != nil {
		t.Fatalf("background processing never finished: %v", err)
	}
	if env.forwarder.calls != 1 {
		t.Fatalf("forwarder calls = %d, want 1 after background run", env.forwarder.calls)
	}
}

func TestCreatePreferenceValidation(t *testing.T) {
	env := newEnv(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/preferences",
		bytes.NewBufferString(`{"title":"Course"}`))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing fields", w.Code)
	}
}

func TestCreatePreferenceSuccess(t *testing.T) {
	env := newEnv(t, Options{SiteBaseURL: "https://site.example.com"})
	env.client.prefResult = &mercadopago.PreferenceResult{
		ID:        "pref-1",
		InitPoint: "https://pay.example.com/1",
	}

	req := httptest.NewRequest(http.MethodPost, "/api/preferences",
		bytes.NewBufferString(`{"id":"course-1","title":"Course","price":100}`))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp models.PreferenceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.PreferenceID != "pref-1" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestCreatePreferenceUpstreamFailure(t *testing.T) {
	env := newEnv(t, Options{})
	env.client.prefErr = &mercadopago.UpstreamError{StatusCode: http.StatusBadRequest}

	req := httptest.NewRequest(http.MethodPost, "/api/preferences",
		bytes.NewBufferString(`{"id":"c","title":"t","price":10}`))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 for upstream failure", w.Code)
	}
}

func TestPaymentLookupNotFound(t *testing.T) {
	env := newEnv(t, Options{})
	env.client.fetchErr = &mercadopago.UpstreamError{StatusCode: http.StatusNotFound}

	req := httptest.NewRequest(http.MethodGet, "/api/payments/999", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != false {
		t.Fatalf("success = %v, want false", resp["success"])
	}
	if resp["api_status"] != float64(http.StatusNotFound) {
		t.Fatalf("api_status = %v, want 404", resp["api_status"])
	}
}

func TestAccountCheck(t *testing.T) {
	env := newEnv(t, Options{})
	env.client.account = &models.Account{ID: 42, Email: "seller@example.com", SiteID: "MLB"}

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("success = %v, want true", resp["success"])
	}
}
