package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/rzbill/courier/internal/transport"
)

// QueuesController exposes read-only queue inspection.
type QueuesController struct {
	inspector transport.Inspector
}

func NewQueuesController(inspector transport.Inspector) *QueuesController {
	return &QueuesController{inspector: inspector}
}

// RegisterRoutes sets up:
// - GET /v1/queues/{name}/stats
// - GET /v1/queues/{name}/messages?limit=&filter=
func (c *QueuesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/queues/{name}/stats", c.handleStats)
	mux.HandleFunc("GET /v1/queues/{name}/messages", c.handlePeek)
}

func (c *QueuesController) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := c.inspector.Stats(r.Context(), r.PathValue("name"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, st)
}

func (c *QueuesController) handlePeek(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q := r.URL.Query()
	msgs, err := c.inspector.Peek(r.Context(), name, transport.PeekOptions{
		Limit:  parseLimit(q.Get("limit"), 50),
		Filter: q.Get("filter"),
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	out := peekResp{Queue: name, Messages: make([]peekMessage, len(msgs))}
	for i, m := range msgs {
		pm := peekMessage{Seq: m.Seq, Deliveries: m.Deliveries, Leased: m.Leased, EnqueuedAtMs: m.EnqueuedAtMs}
		if json.Valid(m.Body) {
			pm.Body = m.Body
		} else {
			pm.Text = string(m.Body)
		}
		out.Messages[i] = pm
	}
	writeJSON(w, out)
}
