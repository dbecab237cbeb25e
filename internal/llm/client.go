// Package llm provides an optional summarization backend: a pluggable
// Client interface, a rate-limited HTTP implementation grounded on the
// teacher's GraphQL client, and a Disabled no-op used when the feature is
// off in configuration.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

var debugLLM = os.Getenv("AGENTMAIL_DEBUG_LLM") != ""

// Client completes a (system, user) prompt pair and returns raw text.
// Callers are responsible for parsing the response and must treat any
// error, or any response that fails to parse as JSON, as "no augmentation".
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Disabled is the zero-configuration Client used when the LLM toggle is off.
type Disabled struct{}

func (Disabled) Complete(ctx context.Context, system, user string) (string, error) {
	return "", fmt.Errorf("llm: disabled")
}

// HTTPClient calls an OpenAI-compatible chat-completions endpoint, rate
// limited the same way the teacher's internal/api.Client throttles calls to
// the Linear GraphQL endpoint.
type HTTPClient struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a client capped at the given sustained rate (req/s)
// with the given burst, mirroring the teacher's token-bucket construction.
func NewHTTPClient(apiURL, apiKey, model string, ratePerSecond float64, burst int) *HTTPClient {
	if ratePerSecond <= 0 {
		ratePerSecond = 0.5
	}
	if burst <= 0 {
		burst = 5
	}
	return &HTTPClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete blocks on the rate limiter, then issues one chat-completion call.
func (c *HTTPClient) Complete(ctx context.Context, system, user string) (string, error) {
	if tokens := c.limiter.Tokens(); tokens <= 0 && debugLLM {
		log.Printf("[llm] token bucket empty, request will block until tokens replenish")
	}
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit wait cancelled: %w", err)
	}
	if wait := time.Since(waitStart); debugLLM && wait > 50*time.Millisecond {
		log.Printf("[llm] waited %s for a rate-limit token", wait.Round(time.Millisecond))
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: unexpected status %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("llm: unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}
