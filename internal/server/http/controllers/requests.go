package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/courier/internal/probe"
)

const maxRequestBody = 1 << 20

// RequestsController submits requests through the queue-backed client and
// writes the worker's response.
type RequestsController struct {
	client  Caller
	timeout time.Duration
	now     func() time.Time
}

// NewRequestsController creates a requests controller. timeout is the
// default request timeout, overridable per call with ?timeout=.
func NewRequestsController(client Caller, timeout time.Duration) *RequestsController {
	return &RequestsController{client: client, timeout: timeout, now: time.Now}
}

// RegisterRoutes sets up:
// - POST /v1/requests (raw JSON passthrough)
// - POST /v1/probe (probe request body)
// - GET /v1/probe/{n} (probe built from the path, for browsers)
func (c *RequestsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/requests", c.handleSubmit)
	mux.HandleFunc("POST /v1/probe", c.handleProbePost)
	mux.HandleFunc("GET /v1/probe/{n}", c.handleProbeGet)
}

func (c *RequestsController) handleSubmit(w http.ResponseWriter, r *http.Request) {
	timeout, err := parseTimeout(r.URL.Query().Get("timeout"), c.timeout)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timeout")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	resp, err := c.client.Call(r.Context(), body, timeout)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, resp)
}

func (c *RequestsController) handleProbePost(w http.ResponseWriter, r *http.Request) {
	var req probe.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid probe request")
		return
	}
	c.callProbe(w, r, req)
}

func (c *RequestsController) handleProbeGet(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request number must be an integer")
		return
	}
	c.callProbe(w, r, probe.Request{RequestNumber: n, StartTime: c.now().UTC()})
}

func (c *RequestsController) callProbe(w http.ResponseWriter, r *http.Request, req probe.Request) {
	payload, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	raw, err := c.client.Call(r.Context(), payload, c.timeout)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var resp probe.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("worker returned a non-probe response: %v", err))
		return
	}
	writeJSON(w, resp)
}
