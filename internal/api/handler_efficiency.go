package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"embroidery-telemetry-backend/internal/store"
)

// GetEfficiency handles GET /api/machines/:uid/efficiency. Optional `since`
// and `until` query parameters (RFC3339) bound the returned windows; the
// default is the trailing 24 hours.
func (h *Handler) GetEfficiency(c *gin.Context) {
	machine, err := h.store.GetMachine(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, store.ErrMachineNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machine"})
		}
		return
	}

	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)

	if v := c.Query("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'since' timestamp format. Use RFC3339."})
			return
		}
		since = ts
	}
	if v := c.Query("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'until' timestamp format. Use RFC3339."})
			return
		}
		until = ts
	}

	records, err := h.store.EfficiencyInRange(c.Request.Context(), machine.ID, since, until)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve efficiency records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"machineUid": machine.UID,
		"records":    records,
	})
}
