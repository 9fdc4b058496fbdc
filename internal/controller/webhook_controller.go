package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"order-fulfillment-service/internal/repository"
	"order-fulfillment-service/internal/service"
)

type WebhookController struct {
	Service *service.WebhookService
}

func NewWebhookController(s *service.WebhookService) *WebhookController {
	return &WebhookController{Service: s}
}

// POST /webhooks/carrier — inbound carrier deliveries. Always answers
// 200 for events we recorded (processed, retried, or duplicate) so the
// carrier stops redelivering; only malformed payloads get a 4xx.
func (ctl *WebhookController) Receive(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	meta := service.SourceMeta{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}

	entry, err := ctl.Service.Ingest(c.Request.Context(), raw, meta)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": entry.Status})
	case errors.Is(err, service.ErrDuplicateEvent):
		c.JSON(http.StatusOK, gin.H{"status": entry.Status})
	case errors.Is(err, service.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GET /admin/webhooks/failed — events that exhausted their retries.
func (ctl *WebhookController) GetFailedEvents(c *gin.Context) {
	entries, err := ctl.Service.FailedEvents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// POST /admin/webhooks/:id/replay — manual re-attempt of a failed event.
func (ctl *WebhookController) Replay(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ledger entry id"})
		return
	}

	entry, err := ctl.Service.Replay(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ledger entry not found"})
		case errors.Is(err, service.ErrReplayNotFailed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, entry)
}
