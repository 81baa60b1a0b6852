package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"b402-poker/server/engine"
)

// HTTPAgent talks to a remote player service over its /act endpoint. The
// per-request timeout bounds how long a hand can stall on one seat.
type HTTPAgent struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

func NewHTTPAgent(endpoint string, timeout time.Duration) *HTTPAgent {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAgent{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Timeout:  timeout,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAgent) RequestAction(ctx context.Context, o Observation) (engine.Action, error) {
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	body, _ := json.Marshal(map[string]any{"observation": o})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint+"/act", bytes.NewReader(body))
	if err != nil {
		return engine.Action{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return engine.Action{}, fmt.Errorf("agent %s: %w", a.Endpoint, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return engine.Action{}, fmt.Errorf("agent %s: http %d: %s", a.Endpoint, resp.StatusCode, raw)
	}

	var out ActionOut
	if err := json.Unmarshal(raw, &out); err != nil {
		return engine.Action{}, fmt.Errorf("agent %s: bad response: %w", a.Endpoint, err)
	}
	return Validate(o, out)
}

// StrategyRequester runs a Strategy in-process, for local tables and tests.
type StrategyRequester struct {
	Strategy Strategy
}

func (r *StrategyRequester) RequestAction(ctx context.Context, o Observation) (engine.Action, error) {
	out, err := r.Strategy.Decide(ctx, o)
	if err != nil {
		return engine.Action{}, err
	}
	return Validate(o, out)
}
