package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/rzbill/courier/internal/transport"
)

// Deps are the backends behind the HTTP routes. A nil Client, Inspector or
// Results leaves the matching routes unregistered.
type Deps struct {
	Health         func(context.Context) error
	Client         Caller
	RequestTimeout time.Duration
	Inspector      transport.Inspector
	Results        ResultSource
}

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general  *GeneralController
	requests *RequestsController
	queues   *QueuesController
	results  *ResultsController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(d Deps) *ControllerRegistry {
	r := &ControllerRegistry{general: NewGeneralController(d.Health)}
	if d.Client != nil {
		r.requests = NewRequestsController(d.Client, d.RequestTimeout)
	}
	if d.Inspector != nil {
		r.queues = NewQueuesController(d.Inspector)
	}
	if d.Results != nil {
		r.results = NewResultsController(d.Results)
	}
	return r
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	if r.requests != nil {
		r.requests.RegisterRoutes(mux)
	}
	if r.queues != nil {
		r.queues.RegisterRoutes(mux)
	}
	if r.results != nil {
		r.results.RegisterRoutes(mux)
	}
}
