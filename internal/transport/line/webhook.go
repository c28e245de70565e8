package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// SignatureHeader carries the HMAC of the webhook body.
const SignatureHeader = "X-Line-Signature"

// ErrBadSignature is returned when the webhook signature does not match.
var ErrBadSignature = errors.New("line: webhook signature mismatch")

// WebhookRequest is the envelope LINE POSTs to the bot's webhook URL.
// Only text message events are acted on; everything else is skipped.
type WebhookRequest struct {
	Events []Event `json:"events"`
}

type Event struct {
	Type    string        `json:"type"`
	Message *EventMessage `json:"message,omitempty"`
}

type EventMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeWebhook parses a webhook body. A payload without an events list is
// malformed per the platform contract.
func DecodeWebhook(body []byte) (*WebhookRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("line: decode webhook: %w", err)
	}
	if _, ok := raw["events"]; !ok {
		return nil, errors.New("line: webhook payload missing events")
	}
	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("line: decode webhook: %w", err)
	}
	return &req, nil
}

// VerifySignature checks the X-Line-Signature header value against the raw
// request body using the channel secret. An empty secret disables the check.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
