package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docvault/internal/config"
)

// Package notify delivers outbound messages to principals through a
// WhatsApp-style campaign provider. Delivery is best-effort by contract:
// callers log failures and never roll back the operation that triggered the
// message.

// Notifier sends one message to a principal. The recipient is the principal
// id; the provider resolves it to an actual destination.
type Notifier interface {
	Send(ctx context.Context, recipient, message string) error
}

// Campaign posts messages to a campaign-based messaging API (the provider
// shape: JSON body with api key, campaign name, destination and template
// params).
type Campaign struct {
	client   *http.Client
	endpoint string
	apiKey   string
	campaign string
	sender   string
}

// NewCampaign creates a campaign notifier from config. Returns a Noop
// notifier when no endpoint or api key is configured.
func NewCampaign(cfg config.NotifyConfig) Notifier {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return Noop{}
	}
	return &Campaign{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		campaign: cfg.Campaign,
		sender:   cfg.Sender,
	}
}

type campaignPayload struct {
	APIKey         string   `json:"apiKey"`
	CampaignName   string   `json:"campaignName"`
	Destination    string   `json:"destination"`
	UserName       string   `json:"userName"`
	TemplateParams []string `json:"templateParams"`
}

// Send posts the message. Non-2xx responses are errors; the caller decides
// whether to swallow them.
func (c *Campaign) Send(ctx context.Context, recipient, message string) error {
	body, err := json.Marshal(campaignPayload{
		APIKey:         c.apiKey,
		CampaignName:   c.campaign,
		Destination:    recipient,
		UserName:       c.sender,
		TemplateParams: []string{message},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("notify provider returned %s", res.Status)
	}
	return nil
}

// Noop drops every message. Used when notifications are not configured.
type Noop struct{}

func (Noop) Send(context.Context, string, string) error { return nil }
