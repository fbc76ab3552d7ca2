package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"embroidery-telemetry-backend/internal/ingest"
	"embroidery-telemetry-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	gateway *ingest.Gateway
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, gateway *ingest.Gateway, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		gateway: gateway,
		webpush: webpushOptions,
	}
}
