package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"masjidbox-bridge/internal/coordinator"
	"masjidbox-bridge/internal/mw"
	"masjidbox-bridge/internal/platform"
	"masjidbox-bridge/internal/setup"
	"masjidbox-bridge/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	flow     *setup.Flow
	platform *platform.Platform
	cache    *cache.Cache
}

// NewHandler creates a new API handler. Cached responses of a place are
// dropped whenever the platform reports a change for it.
func NewHandler(s store.Store, p *platform.Platform, c *cache.Cache) *Handler {
	h := &Handler{
		store:    s,
		flow:     setup.NewFlow(s),
		platform: p,
		cache:    c,
	}
	p.AddObserver(cacheInvalidator{cache: c})
	return h
}

func placePrefix(id string) string {
	return "/api/places/" + id + "/"
}

// cacheInvalidator flushes the cached responses of an entry.
type cacheInvalidator struct {
	cache *cache.Cache
}

func (ci cacheInvalidator) EntryLoaded(e *platform.Entry) {
	mw.Invalidate(ci.cache, placePrefix(e.Place.ID))
}

func (ci cacheInvalidator) EntryUpdated(e *platform.Entry, _ *coordinator.Snapshot) {
	mw.Invalidate(ci.cache, placePrefix(e.Place.ID))
}

func (ci cacheInvalidator) EntryUnloaded(e *platform.Entry) {
	mw.Invalidate(ci.cache, placePrefix(e.Place.ID))
}

func (ci cacheInvalidator) EntryRemoved(e *platform.Entry) {
	mw.Invalidate(ci.cache, placePrefix(e.Place.ID))
}

// entry resolves the loaded entry named by the :id parameter or answers 404.
func (h *Handler) entry(c *gin.Context) (*platform.Entry, bool) {
	e, ok := h.platform.Entry(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "place not loaded"})
		return nil, false
	}
	return e, true
}

// Healthz reports liveness and the number of loaded places.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "places": len(h.platform.Entries())})
}
