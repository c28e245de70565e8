// Package line implements the narrow slice of the LINE Messaging API this
// bot needs: pushing text to one fixed recipient and decoding inbound
// webhook events.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "github.com/ansa1019/tool/pkg/logx"
)

// DefaultEndpoint is the production push endpoint.
const DefaultEndpoint = "https://api.line.me/v2/bot/message/push"

const pushTimeout = 10 * time.Second

type ClientConfig struct {
	Token    string // channel access token
	UserID   string // fixed recipient
	Endpoint string // override for tests; DefaultEndpoint when empty
}

// Client pushes text messages to a single fixed LINE user.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("line: channel token is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("line: user id is required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: pushTimeout},
		log:  log,
	}, nil
}

type pushMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushBody struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

// PushText sends one text message to the configured recipient.
func (c *Client) PushText(ctx context.Context, text string) error {
	body, err := json.Marshal(pushBody{
		To:       c.cfg.UserID,
		Messages: []pushMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("line: encode push body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("line: build push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("line: push: %w", err)
	}
	defer res.Body.Close()

	// The API answers with a small JSON body; keep a bounded slice for logs.
	respBody, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("line: push status %d: %s", res.StatusCode, strings.TrimSpace(string(respBody)))
	}

	c.log.Debug("line push ok", logx.Int("status", res.StatusCode))
	return nil
}
