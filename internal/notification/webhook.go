package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// webhookBody is the JSON document POSTed per alert. Exactly one of Signal,
// Trade or Text is set, matching Event.
type webhookBody struct {
	Event  EventKind     `json:"event"`
	Level  AlertLevel    `json:"level"`
	Symbol string        `json:"symbol,omitempty"`
	SentAt string        `json:"sent_at"`
	Signal *SignalRecord `json:"signal,omitempty"`
	Trade  *TradeRecord  `json:"trade,omitempty"`
	Text   string        `json:"text,omitempty"`
}

// WebhookNotifier POSTs the signal or trade record behind each alert to an
// HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	doc := webhookBody{
		Event:  alert.Event,
		Level:  alert.Level,
		Symbol: alert.Symbol,
		SentAt: w.now().UTC().Format(time.RFC3339Nano),
		Signal: alert.Signal,
		Trade:  alert.Trade,
	}
	if doc.Signal == nil && doc.Trade == nil {
		doc.Event = EventMessage
		doc.Text = alert.Title
		if alert.Message != "" {
			doc.Text += ": " + alert.Message
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", doc.Event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s: %w", doc.Event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s rejected with status %d", doc.Event, resp.StatusCode)
	}

	log.Printf("[webhook] posted %s for %s", doc.Event, alert.Symbol)
	return nil
}
