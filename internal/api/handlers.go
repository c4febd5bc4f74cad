package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"escalation-service/internal/breaker"
	"escalation-service/internal/channels"
	"escalation-service/internal/db"
	"escalation-service/internal/escalation"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/queue"
)

type Handler struct {
	db       *db.DB
	svc      *escalation.Service
	queue    *queue.Queue
	breakers *breaker.Registry
	selector *channels.Selector
	logger   *logging.Logger
}

func NewHandler(database *db.DB, svc *escalation.Service, q *queue.Queue, breakers *breaker.Registry, selector *channels.Selector, logger *logging.Logger) *Handler {
	return &Handler{db: database, svc: svc, queue: q, breakers: breakers, selector: selector, logger: logger}
}

// InitiateEscalation starts an alert's escalation. ?dry_run=true rehearses
// the fan-out without touching any transport.
func (h *Handler) InitiateEscalation(c *gin.Context) {
	id := c.Param("id")
	dryRun := c.Query("dry_run") == "true"

	res := h.svc.Initiate(c.Request.Context(), id, dryRun)
	if !res.Success {
		h.logger.Warnf("Initiate escalation rejected for alert %s: %s", id, res.Error)
		c.JSON(http.StatusConflict, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AcknowledgeAlert flips the acknowledged flag, halting further steps.
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.svc.Acknowledge(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Acknowledge failed for alert %s: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "already_acknowledged": !ok})
}

// GetEscalationMatrix returns the per-step delivery attempt rows for an
// alert.
func (h *Handler) GetEscalationMatrix(c *gin.Context) {
	id := c.Param("id")
	attempts, err := h.db.ListAttempts(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("List attempts failed for alert %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert_id": id, "attempts": attempts})
}

type broadcastRequest struct {
	ContactIDs []string `json:"contact_ids" binding:"required"`
	Channels   []string `json:"channels"`
	Severity   int      `json:"severity" binding:"required"`
}

// Broadcast enqueues a mass, non-escalation fan-out for an alert on the bulk
// lane. When no channels are given, each contact's channels are derived from
// the severity policy.
func (h *Handler) Broadcast(c *gin.Context) {
	alertID := c.Param("id")
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if len(req.Channels) > 0 {
		p := queue.BulkPayload{AlertID: alertID, ContactIDs: req.ContactIDs, Severity: req.Severity}
		for _, ch := range req.Channels {
			kind := models.ChannelKind(ch)
			if !kind.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel: " + ch})
				return
			}
			p.Channels = append(p.Channels, kind)
		}
		job, err := h.queue.AddBulkAlert(ctx, p)
		if err != nil {
			h.logger.Errorf("Bulk enqueue failed for alert %s: %v", alertID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
		return
	}

	// No explicit channels: narrow per contact by severity.
	enqueued := 0
	for _, contactID := range req.ContactIDs {
		contact, err := h.db.GetContact(ctx, contactID)
		if err != nil {
			h.logger.Warnf("Broadcast skipping contact %s: %v", contactID, err)
			continue
		}
		for _, kind := range h.selector.Select(contact, req.Severity) {
			_, err := h.queue.AddAlert(ctx, queue.SendPayload{
				AlertID:   alertID,
				ContactID: contactID,
				Channel:   kind,
			}, req.Severity)
			if err != nil {
				h.logger.Errorf("Broadcast enqueue failed for contact %s via %s: %v", contactID, kind, err)
				continue
			}
			enqueued++
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs_enqueued": enqueued})
}

// GetQueueStats reports per-lane job counts.
func (h *Handler) GetQueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetBreakers reports the state of every circuit breaker.
func (h *Handler) GetBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, h.breakers.Stats())
}

// ResetBreaker forces a breaker closed. Operator action.
func (h *Handler) ResetBreaker(c *gin.Context) {
	name := c.Param("name")
	if err := h.breakers.Reset(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.Infof("Breaker %s reset by operator", name)
	c.JSON(http.StatusOK, gin.H{"reset": name})
}
