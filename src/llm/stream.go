package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"luxselect/src/failure"
)

const replayChunkRunes = 20

// Chunk is one fragment of a response. The final chunk has no content.
type Chunk struct {
	Content string
	Final   bool
}

// Stream is a cancellable, ordered sequence of chunks. Consumers call Next
// until it reports false, then Err. A consumer that stops early must Cancel.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan Chunk
	done   chan struct{}

	// set by Cancel only; a stream that ends normally still drains ch
	stopped atomic.Bool

	// written by the producer goroutine only, read after done
	err    error
	text   strings.Builder
	cached bool
}

// Next blocks for the next chunk. It returns false once the stream has ended
// or been cancelled; no chunk is returned after Cancel.
func (s *Stream) Next() (Chunk, bool) {
	c, ok := <-s.ch
	if !ok || s.stopped.Load() {
		return Chunk{}, false
	}
	return c, true
}

// Cancel aborts the underlying request. It is safe to call more than once.
func (s *Stream) Cancel() {
	s.stopped.Store(true)
	s.cancel()
}

// Done is closed when the producer has finished and released the connection.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err waits for the producer and returns its terminal error, a *failure.Error,
// or nil on success.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Text waits for the producer and returns every fragment delivered so far.
func (s *Stream) Text() string {
	<-s.done
	return s.text.String()
}

// Cached reports whether the response was replayed from the cache.
func (s *Stream) Cached() bool {
	<-s.done
	return s.cached
}

func (s *Stream) send(c Chunk) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	select {
	case s.ch <- c:
		s.text.WriteString(c.Content)
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Stream) cancelled(err error) *failure.Error {
	return &failure.Error{Kind: failure.Cancelled, Op: "llm.stream", Partial: s.text.String(), Err: err}
}

// Start streams an explanation of prompt. The request runs until it
// completes, fails, or ctx or Cancel stops it.
func (c *Client) Start(ctx context.Context, prompt string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{ctx: ctx, cancel: cancel, ch: make(chan Chunk, 16), done: make(chan struct{})}
	go func() {
		defer func() {
			close(s.ch)
			close(s.done)
			cancel()
		}()
		s.err = c.produce(s, prompt)
	}()
	return s
}

func (c *Client) produce(s *Stream, prompt string) error {
	prompt = c.limitPrompt(prompt)
	body := chatRequest{
		Model: c.opts.Model,
		Messages: []message{
			{Role: "system", Content: c.opts.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      true,
	}

	var key string
	if c.cache != nil {
		key = cacheKey(c.opts.Model, c.opts.SystemPrompt, prompt)
		if text, ok := c.cache.Get(key); ok {
			zap.S().Infow("using cached response", "chars", utf8.RuneCountInString(text))
			s.cached = true
			return c.replay(s, text)
		}
	}

	start := time.Now()
	var lastErr *failure.Error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			zap.S().Warnw("llm stream failed, retrying", "attempt", attempt, "delay", delay, "error", lastErr)
			if err := sleepCtx(s.ctx, delay); err != nil {
				return s.cancelled(err)
			}
		}
		retry, ferr := c.streamOnce(s, body)
		if ferr == nil {
			if err := s.send(Chunk{Final: true}); err != nil {
				return s.cancelled(err)
			}
			text := s.text.String()
			zap.S().Infow("llm stream completed", "chars", utf8.RuneCountInString(text), "attempts", attempt+1, "elapsed", time.Since(start))
			if c.cache != nil && text != "" {
				c.cache.Set(key, text)
			}
			return nil
		}
		if !retry {
			return ferr
		}
		lastErr = ferr
	}
	return lastErr
}

// streamOnce makes one attempt. retry is true only for failures that happened
// before any response body was accepted.
func (c *Client) streamOnce(s *Stream, body chatRequest) (retry bool, ferr *failure.Error) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(c.opts.Timeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return false, failure.New(failure.Internal, "llm.stream", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if stalled.Load() {
			return true, failure.New(failure.TransientNetwork, "llm.stream", fmt.Errorf("no response within %s", c.opts.Timeout))
		}
		ferr := transportError(s.ctx, "llm.stream", err)
		if ferr.Kind == failure.Cancelled {
			return false, s.cancelled(err)
		}
		return true, ferr
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		ferr := statusError("llm.stream", resp)
		return ferr.Kind == failure.TransientNetwork, ferr
	}

	watchdog.Reset(c.opts.ChunkTimeout)
	dec := newEventDecoder(resp.Body)
	finished := false
	for {
		data, err := dec.Next()
		if errors.Is(err, errStreamDone) || (errors.Is(err, io.EOF) && finished) {
			return false, nil
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return false, s.cancelled(s.ctx.Err())
			}
			switch {
			case stalled.Load():
				err = fmt.Errorf("no data for %s", c.opts.ChunkTimeout)
			case errors.Is(err, io.EOF):
				err = errors.New("connection closed before end of stream")
			}
			return false, &failure.Error{Kind: failure.TransientNetwork, Op: "llm.stream", Partial: s.text.String(), Err: err}
		}
		watchdog.Reset(c.opts.ChunkTimeout)

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			zap.S().Debugw("skipping undecodable stream frame", "error", err)
			continue
		}
		if frame.Error != nil {
			return false, &failure.Error{Kind: failure.TransientNetwork, Op: "llm.stream", Partial: s.text.String(), Err: errors.New(frame.Error.Message)}
		}
		for _, choice := range frame.Choices {
			if choice.Delta.Content != "" {
				if err := s.send(Chunk{Content: choice.Delta.Content}); err != nil {
					return false, s.cancelled(err)
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finished = true
			}
		}
	}
}

// replay delivers a cached response in small pieces so the overlay renders it
// the same way as a live stream.
func (c *Client) replay(s *Stream, text string) error {
	runes := []rune(text)
	for i := 0; i < len(runes); i += replayChunkRunes {
		end := min(i+replayChunkRunes, len(runes))
		if err := s.send(Chunk{Content: string(runes[i:end])}); err != nil {
			return s.cancelled(err)
		}
		if c.opts.ReplayDelay > 0 {
			if err := sleepCtx(s.ctx, c.opts.ReplayDelay); err != nil {
				return s.cancelled(err)
			}
		}
	}
	if err := s.send(Chunk{Final: true}); err != nil {
		return s.cancelled(err)
	}
	return nil
}

func (c *Client) limitPrompt(prompt string) string {
	limit := c.opts.MaxPromptChars
	if limit <= 0 || utf8.RuneCountInString(prompt) <= limit {
		return prompt
	}
	zap.S().Warnw("prompt truncated", "chars", utf8.RuneCountInString(prompt), "max", limit)
	return string([]rune(prompt)[:limit])
}
