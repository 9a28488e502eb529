package worker

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/queue"
)

// DeadLetterHandler records terminally failed jobs for operator visibility.
// It runs at low priority, performs no further retries, and its only effect
// is a structured log line carrying the terminal reason.
type DeadLetterHandler struct {
	logger *zap.Logger
}

func NewDeadLetterHandler(logger *zap.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{logger: logger}
}

func (h *DeadLetterHandler) Handle(_ context.Context, job *domain.Job, _ ProgressFunc) error {
	var p queue.DeadLetterPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return domain.Terminal(err)
	}

	h.logger.Warn("job failed terminally",
		zap.String("job_id", p.JobID),
		zap.String("job_type", p.JobType),
		zap.String("reason", p.Reason),
	)
	return nil
}

var _ Handler = (*DeadLetterHandler)(nil)
