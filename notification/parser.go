// Package notification extracts a payment identifier and event topic
// from the processor's heterogeneous notification shapes.
package notification

import (
	"encoding/json"
	"net/url"
	"strings"

	"webhook-service/models"
)

// flexID accepts the id as either a JSON string or a JSON number; the
// processor is not consistent across notification versions.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	// Unexpected shape, leave the id empty rather than failing the parse.
	return nil
}

// body covers the two JSON body shapes the processor sends: the
// current {action, data:{id}} form and the legacy {topic, resource}
// form.
type body struct {
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
	Topic    string `json:"topic"`
	Resource string `json:"resource"`
}

// Parse extracts the payment id and topic from a notification.
// Precedence: body action form, then query parameters, then the
// legacy resource form. PaymentID is empty when no shape matches.
func Parse(rawBody []byte, query url.Values) models.Notification {
	var b body
	if len(rawBody) > 0 {
		// Malformed bodies fall through to the query shape.
		_ = json.Unmarshal(rawBody, &b)
	}

	if b.Action != "" && b.Data.ID != "" {
		return models.Notification{PaymentID: string(b.Data.ID), Topic: b.Action}
	}

	if id := queryID(query); id != "" {
		topic := query.Get("topic")
		if topic == "" {
			topic = query.Get("type")
		}
		return models.Notification{PaymentID: id, Topic: topic}
	}

	if b.Topic != "" && b.Resource != "" {
		segments := strings.Split(strings.TrimRight(b.Resource, "/"), "/")
		return models.Notification{PaymentID: segments[len(segments)-1], Topic: b.Topic}
	}

	return models.Notification{}
}

func queryID(query url.Values) string {
	if id := query.Get("id"); id != "" {
		return id
	}
	return query.Get("data.id")
}

// IsPaymentTopic reports whether a topic describes a payment event.
func IsPaymentTopic(topic string) bool {
	return topic == "payment" ||
		topic == "payment.updated" ||
		strings.Contains(topic, "payment")
}
