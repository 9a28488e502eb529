package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookTransport delivers messages by POSTing them to an HTTP endpoint
// (a hosted mail relay in production, a local mock in tests). The base URL
// is injected from config.
type WebhookTransport struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookTransport(baseURL string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// sendResponse maps the provider's 202 Accepted response body.
type sendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// Send posts the message to the configured URL and expects a 202 Accepted
// response with a JSON body containing messageId.
func (t *WebhookTransport) Send(ctx context.Context, msg Message) (*Receipt, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("unexpected provider status: %d", resp.StatusCode)
	}

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Receipt{
		MessageID: sr.MessageID,
		Provider:  "webhook",
		SentAt:    time.Now().UTC(),
	}, nil
}

// compile-time check that WebhookTransport implements Transport
var _ Transport = (*WebhookTransport)(nil)
