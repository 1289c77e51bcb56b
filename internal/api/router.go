package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"masjidbox-bridge/config"
	"masjidbox-bridge/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "X-Cache"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	r.Use(cors.New(corsConfig))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	caching := mw.Cache(h.cache, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/places", h.ListPlaces)
		api.POST("/places", h.CreatePlace)
		api.DELETE("/places/:id", h.DeletePlace)
		api.POST("/places/:id/reload", h.ReloadPlace)
		api.POST("/places/:id/refresh", h.RefreshPlace)

		api.GET("/places/:id/data", caching, h.GetData)
		api.GET("/places/:id/sensors", caching, h.GetSensors)
		api.GET("/places/:id/sensors/:unique_id", caching, h.GetSensor)
		api.GET("/places/:id/calendar.ics", caching, h.GetCalendar)
	}

	return r
}
