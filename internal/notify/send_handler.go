package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/transport"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/worker"
)

// SendJobType is the job type handled by SendHandler.
const SendJobType = "notification.send"

// SendPayload is the wire shape of a notification.send job.
type SendPayload struct {
	To           string            `json:"to"`
	TemplateID   string            `json:"templateId"`
	TemplateData map[string]string `json:"templateData,omitempty"`
	DisplayName  string            `json:"displayName,omitempty"`
}

// SendHandler delivers one notification through an outbound transport.
// The transport is built lazily on first use so a process that never
// sends anything never pays for the connection.
type SendHandler struct {
	transport func() (transport.Transport, error)
	logger    *zap.Logger
}

func NewSendHandler(factory func() (transport.Transport, error), logger *zap.Logger) *SendHandler {
	return &SendHandler{transport: factory, logger: logger}
}

var _ worker.Handler = (*SendHandler)(nil)

func (h *SendHandler) Handle(ctx context.Context, job *domain.Job, progress worker.ProgressFunc) error {
	var p SendPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		// A payload that does not parse will never parse.
		return domain.Terminal(fmt.Errorf("decode payload: %w", err))
	}
	if strings.TrimSpace(p.To) == "" {
		return domain.Terminal(fmt.Errorf("payload has no recipient address"))
	}

	tr, err := h.transport()
	if err != nil {
		return fmt.Errorf("acquire transport: %w", err)
	}
	progress(domain.StageDependencyAcquired)

	data := p.TemplateData
	if p.DisplayName != "" {
		if data == nil {
			data = make(map[string]string, 1)
		}
		if _, ok := data["displayName"]; !ok {
			data["displayName"] = p.DisplayName
		}
	}

	progress(domain.StageTransportCalled)
	receipt, err := tr.Send(ctx, transport.Message{
		To:           p.To,
		TemplateID:   p.TemplateID,
		TemplateData: data,
	})
	if err != nil {
		return fmt.Errorf("send via %q: %w", p.TemplateID, err)
	}

	h.logger.Info("notification delivered",
		zap.String("job_id", job.ID),
		zap.String("to", p.To),
		zap.String("template", p.TemplateID),
		zap.String("provider", receipt.Provider),
		zap.String("message_id", receipt.MessageID))
	return nil
}
