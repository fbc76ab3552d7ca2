package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"embroidery-telemetry-backend/internal/ingest"
	"embroidery-telemetry-backend/internal/store"
	"embroidery-telemetry-backend/internal/telemetry"
)

// PostData handles POST /api/data, the synchronous ingest endpoint used by
// devices without broker access.
func (h *Handler) PostData(c *gin.Context) {
	var raw telemetry.RawPayload
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	machine, err := h.gateway.Ingest(c.Request.Context(), raw, ingest.SourceAPI)
	if err != nil {
		var partial *ingest.PartialIngestError
		switch {
		case errors.Is(err, telemetry.ErrMissingDeviceID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing deviceId"})
		case errors.As(err, &partial):
			// State was updated but history was not; the caller must know
			// this is not a clean success.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event partially ingested: state updated, history append failed"})
		case errors.Is(err, store.ErrRegistryUnavailable) || errors.Is(err, store.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "machine": machine})
}
