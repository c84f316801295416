package notification

import (
	"net/url"
	"testing"
)

func TestParseActionBodyShape(t *testing.T) {
	body := []byte(`{"action":"payment.updated","data":{"id":"12345"}}`)

	n := Parse(body, url.Values{})
	if n.PaymentID != "12345" {
		t.Fatalf("payment id = %q, want 12345", n.PaymentID)
	}
	if n.Topic != "payment.updated" {
		t.Fatalf("topic = %q, want payment.updated", n.Topic)
	}
}

func TestParseNumericID(t *testing.T) {
	body := []byte(`{"action":"payment.created","data":{"id":12345}}`)

	n := Parse(body, url.Values{})
	if n.PaymentID != "12345" {
		t.Fatalf("payment id = %q, want 12345", n.PaymentID)
	}
}

func TestParseQueryShape(t *testing.T) {
	query := url.Values{"id": {"12345"}, "topic": {"payment"}}

	n := Parse(nil, query)
	if n.PaymentID != "12345" {
		t.Fatalf("payment id = %q, want 12345", n.PaymentID)
	}
	if n.Topic != "payment" {
		t.Fatalf("topic = %q, want payment", n.Topic)
	}
}

func TestParseQueryDataIDAndType(t *testing.T) {
	query := url.Values{"data.id": {"12345"}, "type": {"payment"}}

	n := Parse(nil, query)
	if n.PaymentID != "12345" {
		t.Fatalf("payment id = %q, want 12345", n.PaymentID)
	}
	if n.Topic != "payment" {
		t.Fatalf("topic = %q, want payment", n.Topic)
	}
}

func TestParseLegacyResourceShape(t *testing.T) {
	body := []byte(`{"topic":"payment","resource":"https://api.example.com/v1/payments/12345"}`)

	n := Parse(body, url.Values{})
	if n.PaymentID != "12345" {
		t.Fatalf("payment id = %q, want 12345", n.PaymentID)
	}
	if n.Topic != "payment" {
		t.Fatalf("topic = %q, want payment", n.Topic)
	}
}

func TestParseEquivalentShapesAgree(t *testing.T) {
	actionForm := Parse([]byte(`{"action":"payment.updated","data":{"id":"777"}}`), url.Values{})
	queryForm := Parse(nil, url.Values{"id": {"777"}, "topic": {"payment.updated"}})
	legacyForm := Parse([]byte(`{"topic":"payment.updated","resource":"/collections/notifications/777"}`), url.Values{})

	if actionForm.PaymentID != "777" || queryForm.PaymentID != "777" || legacyForm.PaymentID != "777" {
		t.Fatalf("shapes disagree: action=%q query=%q legacy=%q",
			actionForm.PaymentID, queryForm.PaymentID, legacyForm.PaymentID)
	}
}

func TestParseBodyTakesPrecedenceOverQuery(t *testing.T) {
	body := []byte(`{"action":"payment.updated","data":{"id":"111"}}`)
	query := url.Values{"id": {"222"}, "topic": {"merchant_order"}}

	n := Parse(body, query)
	if n.PaymentID != "111" {
		t.Fatalf("payment id = %q, want body id 111", n.PaymentID)
	}
}

func TestParseNoMatch(t *testing.T) {
	cases := []struct {
		name  string
		body  []byte
		query url.Values
	}{
		{"empty", nil, url.Values{}},
		{"malformed body", []byte(`{"action":`), url.Values{}},
		{"unrelated body", []byte(`{"hello":"world"}`), url.Values{}},
		{"topic without resource", []byte(`{"topic":"payment"}`), url.Values{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := Parse(tc.body, tc.query)
			if n.PaymentID != "" {
				t.Fatalf("payment id = %q, want empty", n.PaymentID)
			}
		})
	}
}

func TestIsPaymentTopic(t *testing.T) {
	cases := []struct {
		topic string
		want  bool
	}{
		{"payment", true},
		{"payment.updated", true},
		{"payment.created", true},
		{"topic_payment_wh", true},
		{"merchant_order", false},
		{"subscription", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsPaymentTopic(tc.topic); got != tc.want {
			t.Errorf("IsPaymentTopic(%q) = %v, want %v", tc.topic, got, tc.want)
		}
	}
}
