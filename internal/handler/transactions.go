package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opscribe/opscribe/pkg/apperrors"
	"github.com/opscribe/opscribe/pkg/txlog"
)

// TransactionHandler exposes the recent-transaction ring and sink health for
// operators of the reference service.
type TransactionHandler struct {
	dispatcher *txlog.Dispatcher
	sink       txlog.Sink
}

func NewTransactionHandler(d *txlog.Dispatcher, sink txlog.Sink) *TransactionHandler {
	return &TransactionHandler{dispatcher: d, sink: sink}
}

// List returns the most recently dispatched records, newest first. Supports
// ?limit= and ?status=success|fail.
func (h *TransactionHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			_ = c.Error(apperrors.NewInvalidRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	status := c.Query("status")
	if status != "" && status != string(txlog.StatusSuccess) && status != string(txlog.StatusFail) {
		_ = c.Error(apperrors.NewInvalidRequest("status must be success or fail"))
		return
	}

	records := h.dispatcher.Recent(limit)
	if status != "" {
		filtered := records[:0:0]
		for _, rec := range records {
			if string(rec.Status) == status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	c.JSON(http.StatusOK, gin.H{"transactions": records, "count": len(records)})
}

// Health reports sink reachability.
func (h *TransactionHandler) Health(c *gin.Context) {
	if err := h.sink.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "sink": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
