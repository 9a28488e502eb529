// Package transport abstracts delivery of templated messages to an external
// provider. The worker acquires the client lazily and treats any error from
// Send as a job failure.
package transport

import (
	"context"
	"time"
)

// Message is one templated notification to deliver.
type Message struct {
	To           string            `json:"to"`
	TemplateID   string            `json:"templateId"`
	TemplateData map[string]string `json:"templateData,omitempty"`
}

// Receipt is the provider's delivery acknowledgement.
type Receipt struct {
	MessageID string    `json:"messageId"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sentAt"`
}

// Transport sends one message and returns a delivery receipt.
// Implementations must be safe for reuse across concurrent job executions.
type Transport interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}
