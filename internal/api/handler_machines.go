package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"embroidery-telemetry-backend/internal/store"
)

// GetMachines handles GET /api/machines.
func (h *Handler) GetMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetMachine handles GET /api/machines/:uid.
func (h *Handler) GetMachine(c *gin.Context) {
	machine, err := h.store.GetMachine(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, store.ErrMachineNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machine"})
		}
		return
	}
	c.JSON(http.StatusOK, machine)
}

// ResetMachine handles POST /api/machines/:uid/reset, zeroing the device
// counters after a physical reset.
func (h *Handler) ResetMachine(c *gin.Context) {
	err := h.store.ResetCounters(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, store.ErrMachineNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset counters"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Machine counters reset"})
}
