package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedChat plays back a fixed sequence of upstream outcomes, repeating
// the last entry once the script runs out.
type scriptedChat struct {
	mu     sync.Mutex
	calls  int
	script []func() (openai.ChatCompletionResponse, error)
}

func (s *scriptedChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx]()
}

func (s *scriptedChat) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func replyWith(content string) func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: content}},
			},
		}, nil
	}
}

func failWithStatus(status int) func() (openai.ChatCompletionResponse, error) {
	return func() (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{
			HTTPStatusCode: status,
			Message:        "scripted failure",
		}
	}
}

// sleepRecorder captures backoff delays instead of waiting them out. Locked
// because retries from parallel runs record through the same instance.
type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *sleepRecorder) record(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.durations = append(r.durations, d)
	r.mu.Unlock()
	return nil
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.durations...)
}

func newTestCaller(primary, alternate chatClient) (*UpstreamCaller, *sleepRecorder) {
	sleeps := &sleepRecorder{}
	c := &UpstreamCaller{
		primary:     primary,
		alternate:   alternate,
		model:       "test-model",
		maxAttempts: 5,
		baseDelay:   10 * time.Millisecond,
		timeout:     time.Second,
		logger:      testLogger(),
		sleep:       sleeps.record,
	}
	return c, sleeps
}

func newTestExtractor(upstream *UpstreamCaller, chunkBudget int) *ExtractorService {
	return &ExtractorService{
		upstream:        upstream,
		logger:          testLogger(),
		chunkBudget:     chunkBudget,
		chunkDelay:      time.Millisecond,
		fallbackCardCap: 30,
		defaultLanguage: LanguageEnglish,
		sleep:           func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

func unconfiguredCaller() *UpstreamCaller {
	return &UpstreamCaller{
		model:       "test-model",
		maxAttempts: 5,
		baseDelay:   time.Millisecond,
		timeout:     time.Second,
		logger:      testLogger(),
		sleep:       sleepCtx,
	}
}
