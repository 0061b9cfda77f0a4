package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rzbill/courier/internal/probe"
	"github.com/rzbill/courier/internal/rpc"
)

// Submitter sends one probe request and waits for its response.
type Submitter interface {
	Submit(ctx context.Context, req probe.Request) (probe.Response, error)
}

// QueueSubmitter submits through the request/response queues.
type QueueSubmitter struct {
	Client  *rpc.Client[probe.Request, probe.Response]
	Timeout time.Duration
}

func (s QueueSubmitter) Submit(ctx context.Context, req probe.Request) (probe.Response, error) {
	return s.Client.Call(ctx, req, s.Timeout)
}

// HTTPSubmitter posts probe requests to the front end's /v1/probe route.
type HTTPSubmitter struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPSubmitter(baseURL string, timeout time.Duration) HTTPSubmitter {
	return HTTPSubmitter{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

func (s HTTPSubmitter) Submit(ctx context.Context, req probe.Request) (probe.Response, error) {
	var out probe.Response
	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	url := strings.TrimRight(s.BaseURL, "/") + "/v1/probe"
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	c := s.HTTP
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(hreq)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("loadgen: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("loadgen: decode response: %w", err)
	}
	return out, nil
}
