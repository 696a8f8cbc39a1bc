package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const (
	defaultAbandonedLimit = 50
	maxAbandonedLimit     = 500
)

// OutboxOperator is the part of *outbox.Dispatcher the operator endpoints use.
type OutboxOperator interface {
	Abandoned(ctx context.Context, limit int) ([]*outbox.Event, error)
	Redeliver(ctx context.Context, eventID string) error
}

type abandonedEvent struct {
	EventID      string     `json:"eventId"`
	EventType    string     `json:"eventType"`
	RoutingKey   string     `json:"routingKey"`
	RetryCount   int        `json:"retryCount"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	AbandonedAt  *time.Time `json:"abandonedAt,omitempty"`
}

type outboxHandler struct {
	operator OutboxOperator
}

func (h *outboxHandler) abandoned(c *gin.Context) {
	limit := defaultAbandonedLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAbandonedLimit {
			abort(c, http.StatusBadRequest, fmt.Errorf("%w: limit must be between 1 and %d", account.ErrValidation, maxAbandonedLimit))
			return
		}
		limit = n
	}

	events, err := h.operator.Abandoned(c.Request.Context(), limit)
	if err != nil {
		abort(c, 0, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": lo.Map(events, func(ev *outbox.Event, _ int) abandonedEvent {
			return abandonedEvent{
				EventID:      ev.EventID,
				EventType:    ev.EventType,
				RoutingKey:   ev.RoutingKey,
				RetryCount:   ev.RetryCount,
				ErrorMessage: ev.ErrorMessage,
				CreatedAt:    ev.CreatedAt,
				AbandonedAt:  ev.AbandonedAt,
			}
		}),
	})
}

func (h *outboxHandler) redeliver(c *gin.Context) {
	eventID := c.Param("eventId")
	if err := h.operator.Redeliver(c.Request.Context(), eventID); err != nil {
		abort(c, 0, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eventId": eventID, "status": outbox.StatusPublished})
}
