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

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/version"
)

const maxRemoteBody = 4 << 20

// Remote calls a stage agent served over HTTP. The input is POSTed as JSON
// and the response body is decoded into Out.
type Remote[In, Out any] struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

// NewRemote creates a remote adapter. A zero timeout leaves the deadline to ctx.
func NewRemote[In, Out any](name, url, apiKey string, timeout time.Duration) *Remote[In, Out] {
	return &Remote[In, Out]{
		name:   name,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *Remote[In, Out]) Invoke(ctx context.Context, in In) (Out, error) {
	var out Out

	payload, err := json.Marshal(in)
	if err != nil {
		return out, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("%s: request failed: %w", r.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return out, fmt.Errorf("%s: failed to read response: %w", r.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return out, &AgentError{
			Agent:   r.name,
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, &AgentError{Agent: r.name, Message: "invalid response: " + err.Error()}
	}
	return out, nil
}
