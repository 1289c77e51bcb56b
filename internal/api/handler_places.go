package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"masjidbox-bridge/internal/model"
	"masjidbox-bridge/internal/platform"
	"masjidbox-bridge/internal/setup"
	"masjidbox-bridge/internal/store"
)

const (
	codeInvalidRequest = "invalid_request"
	codeCannotConnect  = "cannot_connect"
)

// PlaceResponse is a configured place. The API key is never exposed.
type PlaceResponse struct {
	ID        string           `json:"id"`
	UniqueID  string           `json:"unique_id"`
	Slug      string           `json:"slug"`
	Days      int              `json:"days"`
	Title     string           `json:"title"`
	CreatedAt time.Time        `json:"created_at"`
	Loaded    bool             `json:"loaded"`
	Status    *platform.Status `json:"status,omitempty"`
}

func (h *Handler) placeResponse(p model.Place) PlaceResponse {
	resp := PlaceResponse{
		ID:        p.ID,
		UniqueID:  p.UniqueID,
		Slug:      p.Slug,
		Days:      p.Days,
		Title:     p.Title,
		CreatedAt: p.CreatedAt,
	}
	if e, ok := h.platform.Entry(p.ID); ok {
		status := e.Status()
		resp.Loaded = true
		resp.Status = &status
	}
	return resp
}

func formErrors(code string) gin.H {
	return gin.H{"errors": gin.H{"base": code}}
}

// ListPlaces handles GET /api/places.
func (h *Handler) ListPlaces(c *gin.Context) {
	places, err := h.store.ListPlaces(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("[api] failed to list places")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve places"})
		return
	}

	responses := make([]PlaceResponse, 0, len(places))
	for _, p := range places {
		responses = append(responses, h.placeResponse(p))
	}
	c.JSON(http.StatusOK, responses)
}

// CreatePlace handles POST /api/places. The place is only kept when its
// first fetch succeeds.
func (h *Handler) CreatePlace(c *gin.Context) {
	var form setup.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, formErrors(codeInvalidRequest))
		return
	}

	ctx := c.Request.Context()
	place, err := h.flow.Submit(ctx, form)
	var formErr *setup.FormError
	switch {
	case errors.As(err, &formErr) && formErr.Code == setup.CodeAlreadyConfigured:
		c.JSON(http.StatusConflict, formErrors(formErr.Code))
		return
	case errors.As(err, &formErr):
		c.JSON(http.StatusBadRequest, formErrors(formErr.Code))
		return
	case err != nil:
		log.Error().Err(err).Msg("[api] failed to store place")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store place"})
		return
	}

	if _, err := h.platform.SetupEntry(ctx, *place); err != nil {
		// The request context may already be gone; the rollback must still run.
		if derr := h.store.DeletePlace(context.WithoutCancel(ctx), place.ID); derr != nil {
			log.Error().Err(derr).Str("slug", place.Slug).Msg("[api] failed to roll back place")
		}
		resp := formErrors(codeCannotConnect)
		resp["detail"] = err.Error()
		c.JSON(http.StatusBadGateway, resp)
		return
	}

	c.JSON(http.StatusCreated, h.placeResponse(*place))
}

// DeletePlace handles DELETE /api/places/:id.
func (h *Handler) DeletePlace(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	place, err := h.store.GetPlace(ctx, id)
	if err != nil {
		h.storeError(c, err)
		return
	}

	if err := h.store.DeletePlace(ctx, id); err != nil {
		h.storeError(c, err)
		return
	}
	h.platform.RemoveEntry(*place)
	c.Status(http.StatusNoContent)
}

// ReloadPlace handles POST /api/places/:id/reload: the entry is unloaded if
// running and set up again from its stored configuration.
func (h *Handler) ReloadPlace(c *gin.Context) {
	ctx := c.Request.Context()
	place, err := h.store.GetPlace(ctx, c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}

	h.platform.UnloadEntry(place.ID)
	if _, err := h.platform.SetupEntry(ctx, *place); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.placeResponse(*place))
}

// RefreshPlace handles POST /api/places/:id/refresh and waits for the fetch.
func (h *Handler) RefreshPlace(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}

	if err := e.Coordinator.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status": e.Status()})
		return
	}
	c.JSON(http.StatusOK, e.Status())
}

func (h *Handler) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	log.Error().Err(err).Str("id", c.Param("id")).Msg("[api] store error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
