// Package llm talks to an OpenAI-compatible chat completion endpoint and
// streams explanations back as ordered chunks.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"luxselect/src/failure"
)

const DefaultSystemPrompt = "You are a concise explainer. Explain the text the user selected: " +
	"state its core meaning directly, translate and define any jargon or proper nouns, " +
	"use Markdown with bold for key terms, and stay under 300 words."

type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64

	// Timeout bounds connecting and waiting for response headers.
	Timeout time.Duration
	// ChunkTimeout bounds the silence between two frames of a stream.
	ChunkTimeout time.Duration
	// MaxRetries is the number of extra attempts after the first.
	MaxRetries   int
	RetryBackoff time.Duration

	MaxPromptChars int

	// CacheSize of zero disables the response cache.
	CacheSize   int
	CacheTTL    time.Duration
	ReplayDelay time.Duration

	HTTPClient *http.Client
}

type Client struct {
	opts  Options
	http  *http.Client
	cache *responseCache
}

func New(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = 15 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	c := &Client{opts: opts, http: opts.HTTPClient}
	if c.http == nil {
		// No client-wide Timeout: it would cut long streams short.
		c.http = &http.Client{}
	}
	if opts.CacheSize > 0 {
		c.cache = newResponseCache(opts.CacheSize, opts.CacheTTL)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"` // string or number depending on vendor
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

// statusError classifies a non-2xx response. 4xx is a configuration problem and
// is never retried; anything else is treated as transient.
func statusError(op string, resp *http.Response) *failure.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	var parsed chatResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	kind := failure.TransientNetwork
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		kind = failure.RequestRejected
	}
	return &failure.Error{Kind: kind, Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
}

// transportError classifies an error from http.Client.Do.
func transportError(ctx context.Context, op string, err error) *failure.Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return failure.New(failure.Cancelled, op, ctx.Err())
	}
	return failure.New(failure.TransientNetwork, op, err)
}

// backoff returns the pause before the given retry (1-based).
func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(float64(c.opts.RetryBackoff) * 1.5 * float64(attempt))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ping checks that the endpoint is reachable and accepts the credential.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return failure.New(failure.Internal, "llm.ping", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, "llm.ping", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("llm.ping", resp)
	}
	zap.S().Debugw("llm endpoint reachable", "baseURL", c.opts.BaseURL, "status", resp.StatusCode)
	return nil
}

// Complete sends a non-streaming request and returns the first choice, with
// the same retry policy as streaming requests.
func (c *Client) Complete(ctx context.Context, messages []message, maxTokens int) (string, error) {
	body := chatRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   maxTokens,
	}
	var lastErr *failure.Error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return "", failure.New(failure.Cancelled, "llm.complete", err)
			}
		}
		text, ferr := c.completeOnce(ctx, body)
		if ferr == nil {
			return text, nil
		}
		if ferr.Kind != failure.TransientNetwork {
			return "", ferr
		}
		lastErr = ferr
		zap.S().Warnw("llm request failed, retrying", "attempt", attempt+1, "error", ferr)
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, body chatRequest) (string, *failure.Error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return "", failure.New(failure.Internal, "llm.complete", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError(ctx, "llm.complete", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", statusError("llm.complete", resp)
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", failure.New(failure.TransientNetwork, "llm.complete", fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return "", failure.New(failure.RequestRejected, "llm.complete", errors.New(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", failure.New(failure.TransientNetwork, "llm.complete", errors.New("no choices in response"))
	}
	return parsed.Choices[0].Message.Content, nil
}
