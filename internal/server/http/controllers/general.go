package controllers

import (
	"context"
	"net/http"
)

// GeneralController handles service-level endpoints.
type GeneralController struct {
	health func(context.Context) error
}

// NewGeneralController creates a new general controller. A nil health
// check always reports ok.
func NewGeneralController(health func(context.Context) error) *GeneralController {
	return &GeneralController{health: health}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/healthz", c.handleHealth)
}

// handleHealth returns 200 OK with {"status": "ok"} if healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if c.health != nil {
		if err := c.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_serving")
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
