package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/bus"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// PublishEventRequest is the POST body for emitting a domain event.
type PublishEventRequest struct {
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    string          `json:"priority,omitempty"`
}

// EventHandler lets other services emit domain events over HTTP instead of
// calling the bus in-process.
type EventHandler struct {
	bus    *bus.Bus
	logger *zap.Logger
}

func NewEventHandler(b *bus.Bus, logger *zap.Logger) *EventHandler {
	return &EventHandler{bus: b, logger: logger}
}

// Publish handles POST /api/v1/events
//
// @Summary  Publish a domain event to all subscribers
// @Tags     events
// @Accept   json
// @Produce  json
// @Param    body  body      PublishEventRequest  true  "Event"
// @Success  202   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/events [post]
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		mapError(w, &domain.ValidationError{Field: "type", Reason: "must not be empty"})
		return
	}

	evt := domain.NewEvent(req.Type, req.AggregateID, req.Payload)
	if req.Priority != "" {
		p := domain.Priority(req.Priority)
		if !p.IsValid() {
			mapError(w, &domain.ValidationError{Field: "priority", Reason: "unknown priority"})
			return
		}
		evt.Priority = p
	}

	h.bus.Publish(r.Context(), evt)
	h.logger.Debug("event published",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type))
	respondJSON(w, http.StatusAccepted, map[string]string{"id": evt.ID})
}
