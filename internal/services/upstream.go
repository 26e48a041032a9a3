package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ankigen/internal/config"
)

// chatClient is the slice of the OpenAI client the caller needs. Tests
// substitute a scripted fake.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// UpstreamCaller issues generation requests against a chat-completion
// endpoint, retrying transient failures with exponential backoff and
// failing over once to an alternate endpoint when one is configured.
type UpstreamCaller struct {
	primary   chatClient
	alternate chatClient
	model     string

	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration

	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewUpstreamCaller(cfg config.Config, logger *slog.Logger) *UpstreamCaller {
	c := &UpstreamCaller{
		model:       cfg.OpenAIModel,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		timeout:     cfg.RequestTimeout,
		logger:      logger,
		sleep:       sleepCtx,
	}
	if cfg.OpenAIKey == "" {
		return c
	}

	primaryCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIEndpoint != "" {
		primaryCfg.BaseURL = cfg.OpenAIEndpoint
	}
	c.primary = openai.NewClientWithConfig(primaryCfg)

	if cfg.OpenAIAltEndpoint != "" && cfg.OpenAIAltEndpoint != cfg.OpenAIEndpoint {
		altCfg := openai.DefaultConfig(cfg.OpenAIKey)
		altCfg.BaseURL = cfg.OpenAIAltEndpoint
		c.alternate = openai.NewClientWithConfig(altCfg)
	}
	return c
}

// Configured reports whether a credential was supplied. An unconfigured
// caller is not an error state; the pipeline routes to the fallback
// extractor instead.
func (c *UpstreamCaller) Configured() bool {
	return c.primary != nil
}

// Complete sends one instruction upstream and returns the raw reply text.
// RateLimited, Unavailable and Transport failures are retried up to the
// attempt budget; Unauthorized surfaces immediately.
func (c *UpstreamCaller) Complete(ctx context.Context, instruction string) (string, error) {
	if !c.Configured() {
		return "", ErrAIUnavailable
	}

	altTried := false
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		reply, err := c.attempt(ctx, c.primary, instruction)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrSchemaRejected) {
			return "", err
		}

		// One immediate same-request shot at the alternate endpoint before
		// the retry loop counts as exhausted.
		if c.alternate != nil && !altTried &&
			(errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTransport)) {
			altTried = true
			c.logger.WarnContext(ctx, "primary endpoint failed, trying alternate",
				"attempt", attempt+1, "error", err)
			reply, altErr := c.attempt(ctx, c.alternate, instruction)
			if altErr == nil {
				return reply, nil
			}
			if errors.Is(altErr, ErrUnauthorized) || errors.Is(altErr, ErrSchemaRejected) {
				return "", altErr
			}
			err = altErr
		}

		lastErr = err
		if attempt == c.maxAttempts-1 {
			break
		}

		delay := c.backoff(attempt)
		c.logger.InfoContext(ctx, "retrying upstream call",
			"attempt", attempt+1, "max_attempts", c.maxAttempts,
			"delay", delay, "error", err)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return "", fmt.Errorf("%w: %v", ErrTransport, sleepErr)
		}
	}

	c.logger.WarnContext(ctx, "upstream retry budget exhausted",
		"attempts", c.maxAttempts, "error", lastErr)
	return "", lastErr
}

func (c *UpstreamCaller) attempt(ctx context.Context, client chatClient, instruction string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: instruction},
		},
		Temperature: 0.4,
		MaxTokens:   4096,
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyUpstreamErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: reply contained no choices", ErrTransport)
	}
	return resp.Choices[0].Message.Content, nil
}

// backoff doubles the base delay each attempt and adds bounded jitter. One
// caller serves every request goroutine, so the jitter comes from the
// lock-protected package-level source rather than caller state.
func (c *UpstreamCaller) backoff(attempt int) time.Duration {
	delay := c.baseDelay << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(c.baseDelay) + 1))
	return delay + jitter
}

func classifyUpstreamErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", sentinelForStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return fmt.Errorf("%w: %v", sentinelForStatus(reqErr.HTTPStatusCode), err)
	}
	// Deadline hits, DNS and connection failures all land here.
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func sentinelForStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 429:
		return ErrRateLimited
	case status >= 500:
		return ErrUnavailable
	case status >= 400:
		return ErrSchemaRejected
	default:
		return ErrTransport
	}
}

// sleepCtx waits for d or for the context to be cancelled, whichever
// comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
