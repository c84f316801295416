// Package signature validates inbound webhook authenticity using the
// processor's x-signature scheme: an HMAC-SHA256 digest over a manifest
// built from the notification id, request id and timestamp.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Verifier checks x-signature headers against a shared secret.
type Verifier struct {
	secret string
}

// NewVerifier creates a new signature verifier. An empty secret
// disables verification (bootstrap soft-fail policy).
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Enabled reports whether a signing secret is configured.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify checks the x-signature header for the given notification id
// and x-request-id. Malformed input fails closed.
func (v *Verifier) Verify(signatureHeader, requestID, dataID string) bool {
	if !v.Enabled() {
		return false
	}

	ts, digest, ok := parseHeader(signatureHeader)
	if !ok {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(digest), []byte(expected))
}

// parseHeader splits the comma-separated "k=v" pairs and returns the
// ts and v1 values.
func parseHeader(header string) (ts, v1 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return "", "", false
	}
	return ts, v1, true
}
