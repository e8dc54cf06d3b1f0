package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/careforall/settlement/internal/service"
)

// WebhookClient delivers settlement events by POSTing to the configured
// webhook endpoint. The endpoint dedupes on eventId, so re-sending the
// same event after a timeout is safe.
type WebhookClient struct {
	url  string
	http *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{url: url, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WebhookClient) Send(ctx context.Context, evt service.SettlementEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", evt.EventID, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return fmt.Errorf("webhook %s: status %d", evt.EventID, res.StatusCode)
	}
	return nil
}
