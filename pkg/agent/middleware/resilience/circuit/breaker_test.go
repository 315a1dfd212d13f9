package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonmaster/internal/mocks"
	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("ollama", cfg)
	b.now = c.now
	return b, c
}

func TestBreakerLifecycle(t *testing.T) {
	b, c := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 10 * time.Second})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, Closed, b.State())

	b.Record(true)
	b.Record(false)
	b.Record(false)
	assert.Equal(t, Closed, b.State(), "a success resets the failure streak")

	b.Record(false)
	assert.Equal(t, Open, b.State())

	c.t = c.t.Add(4 * time.Second)
	var open *Error
	require.ErrorAs(t, b.Allow(), &open)
	assert.Equal(t, 6*time.Second, open.Retry)

	c.t = c.t.Add(6 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())

	b.Record(true)
	assert.Equal(t, HalfOpen, b.State())
	b.Record(true)
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})

	b.Record(false)
	c.t = c.t.Add(time.Second)
	require.NoError(t, b.Allow())
	b.Record(false)

	assert.Equal(t, Open, b.State())
	assert.Error(t, b.Allow())
}

func TestMiddlewareCountsOnlyTransientFailures(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	b := New("anthropic", Config{FailureThreshold: 1})
	client := llm.Chain(mock, Middleware(b))
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})

	mock.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "context too long"))
	_, err := client.Complete(context.Background(), req)
	require.Error(t, err)
	mock.FailCompleteWith(context.Canceled)
	_, err = client.Complete(context.Background(), req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())

	mock.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"))
	_, err = client.Complete(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, Open, b.State())

	calls := mock.GetCompleteCallCount()
	_, err = client.Complete(context.Background(), req)
	var open *Error
	require.True(t, errors.As(err, &open))
	assert.Equal(t, calls, mock.GetCompleteCallCount())
}

func TestSetSharesBreakers(t *testing.T) {
	s := NewSet(Config{})
	assert.Same(t, s.For("openai"), s.For("openai"))
	assert.NotSame(t, s.For("openai"), s.For("google"))
	assert.Equal(t, map[string]string{"openai": "closed", "google": "closed"}, s.States())
}
