package services

import (
	"context"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamCallerComplete(t *testing.T) {
	t.Run("Unconfigured", func(t *testing.T) {
		_, err := unconfiguredCaller().Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, ErrAIUnavailable)
	})

	t.Run("SuccessFirstAttempt", func(t *testing.T) {
		chat := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			replyWith("the reply"),
		}}
		caller, sleeps := newTestCaller(chat, nil)

		reply, err := caller.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "the reply", reply)
		assert.Equal(t, 1, chat.callCount())
		assert.Empty(t, sleeps.recorded())
	})

	t.Run("RateLimitedThenSuccessOnFifthAttempt", func(t *testing.T) {
		chat := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(429),
			failWithStatus(429),
			failWithStatus(429),
			failWithStatus(429),
			replyWith("finally"),
		}}
		caller, sleeps := newTestCaller(chat, nil)

		reply, err := caller.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "finally", reply)
		assert.Equal(t, 5, chat.callCount())

		// Backoff doubles from the base delay with jitter bounded by one
		// base delay per attempt.
		delays := sleeps.recorded()
		require.Len(t, delays, 4)
		base := caller.baseDelay
		var total time.Duration
		for i, d := range delays {
			expected := base << uint(i)
			assert.GreaterOrEqual(t, d, expected)
			assert.LessOrEqual(t, d, expected+base)
			total += d
		}
		assert.GreaterOrEqual(t, total, 15*base)
		assert.LessOrEqual(t, total, 19*base)
	})

	t.Run("RateLimitedExhaustsRetryBudget", func(t *testing.T) {
		chat := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(429),
		}}
		caller, sleeps := newTestCaller(chat, nil)

		_, err := caller.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, 5, chat.callCount())
		assert.Len(t, sleeps.recorded(), 4)
	})

	t.Run("UnauthorizedNeverRetried", func(t *testing.T) {
		chat := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(401),
		}}
		caller, sleeps := newTestCaller(chat, nil)

		_, err := caller.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, 1, chat.callCount())
		assert.Empty(t, sleeps.recorded())
	})

	t.Run("UnavailableFailsOverToAlternateEndpoint", func(t *testing.T) {
		primary := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(503),
		}}
		alternate := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			replyWith("from alternate"),
		}}
		caller, sleeps := newTestCaller(primary, alternate)

		reply, err := caller.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "from alternate", reply)
		assert.Equal(t, 1, primary.callCount())
		assert.Equal(t, 1, alternate.callCount())
		assert.Empty(t, sleeps.recorded())
	})

	t.Run("AlternateTriedAtMostOnce", func(t *testing.T) {
		primary := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(503),
		}}
		alternate := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(503),
		}}
		caller, _ := newTestCaller(primary, alternate)

		_, err := caller.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 5, primary.callCount())
		assert.Equal(t, 1, alternate.callCount())
	})

	t.Run("EmptyChoiceListIsTransport", func(t *testing.T) {
		chat := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			func() (openai.ChatCompletionResponse, error) {
				return openai.ChatCompletionResponse{}, nil
			},
		}}
		caller, _ := newTestCaller(chat, nil)

		_, err := caller.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("SchemaRejectionNotRetried", func(t *testing.T) {
		chat := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(400),
		}}
		caller, _ := newTestCaller(chat, nil)

		_, err := caller.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, ErrSchemaRejected)
		assert.Equal(t, 1, chat.callCount())
	})

	// One caller serves every request goroutine and background job; retries
	// from parallel runs must not touch shared mutable state. Meaningful
	// under the race detector.
	t.Run("SafeForConcurrentRuns", func(t *testing.T) {
		chat := &scriptedChat{script: []func() (openai.ChatCompletionResponse, error){
			failWithStatus(429),
		}}
		caller, _ := newTestCaller(chat, nil)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := caller.Complete(context.Background(), "prompt")
				assert.ErrorIs(t, err, ErrRateLimited)
			}()
		}
		wg.Wait()
		assert.Equal(t, 16*5, chat.callCount())
	})
}

func TestSentinelForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, ErrUnauthorized},
		{403, ErrUnauthorized},
		{429, ErrRateLimited},
		{500, ErrUnavailable},
		{503, ErrUnavailable},
		{400, ErrSchemaRejected},
		{422, ErrSchemaRejected},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, sentinelForStatus(tt.status), tt.want, "status %d", tt.status)
	}
}
