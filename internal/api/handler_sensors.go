package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"masjidbox-bridge/internal/calendar"
)

// GetData handles GET /api/places/:id/data with the last cached response.
func (h *Handler) GetData(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, e.Coordinator.Data())
}

// GetSensors handles GET /api/places/:id/sensors.
func (h *Handler) GetSensors(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, e.States())
}

// GetSensor handles GET /api/places/:id/sensors/:unique_id.
func (h *Handler) GetSensor(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	st, ok := e.State(c.Param("unique_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "sensor not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetCalendar handles GET /api/places/:id/calendar.ics.
func (h *Handler) GetCalendar(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	snap := e.Coordinator.Snapshot()
	if snap == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": calendar.ErrNoEvents.Error()})
		return
	}

	var buf bytes.Buffer
	err := calendar.Write(&buf, e.Place.Slug, e.Place.Title, snap.Data, snap.FetchedAt)
	switch {
	case errors.Is(err, calendar.ErrNoEvents):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Error().Err(err).Str("slug", e.Place.Slug).Msg("[api] failed to encode calendar")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode calendar"})
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}
