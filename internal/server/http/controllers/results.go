package controllers

import (
	"net/http"
)

// ResultsController serves recorded load-test rounds.
type ResultsController struct {
	source ResultSource
}

func NewResultsController(source ResultSource) *ResultsController {
	return &ResultsController{source: source}
}

// RegisterRoutes sets up GET /v1/results?limit=.
func (c *ResultsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/results", c.handleResults)
}

func (c *ResultsController) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 20)
	lat, err := c.source.RecentLatency(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	exc, err := c.source.RecentExceptions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, resultsResp{Latency: lat, Exceptions: exc})
}
