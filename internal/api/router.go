package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"embroidery-telemetry-backend/config"
	"embroidery-telemetry-backend/internal/ingest"
	"embroidery-telemetry-backend/internal/mw"
	"embroidery-telemetry-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, gateway *ingest.Gateway, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, gateway, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Efficiency windows are immutable once written, so the read endpoint is
	// safe to cache briefly.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Telemetry ingest (request-endpoint source)
		api.POST("/data", handler.PostData)

		// Machine snapshots
		api.GET("/machines", handler.GetMachines)
		api.GET("/machines/:uid", handler.GetMachine)
		api.POST("/machines/:uid/reset", handler.ResetMachine)

		// Derived efficiency history
		api.GET("/machines/:uid/efficiency", caching, handler.GetEfficiency)

		// Thread-break alert subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
