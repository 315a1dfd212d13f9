package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonmaster/internal/mocks"
	"dungeonmaster/pkg/agent/llm"
)

func TestTokenBucketRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New("openai", Config{TokensPerMinute: 6000})
	l.now = func() time.Time { return now }
	l.last = now

	release, err := l.Acquire(context.Background(), 4000)
	require.NoError(t, err)
	release()
	assert.Equal(t, 2000, l.Stats().AvailableTokens)

	now = now.Add(10 * time.Second)
	assert.Equal(t, 3000, l.Stats().AvailableTokens)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 6000, l.Stats().AvailableTokens, "the bucket never exceeds one minute of tokens")
}

func TestTokenWaitHonoursContext(t *testing.T) {
	l := New("openai", Config{TokensPerMinute: 60})
	_, err := l.Acquire(context.Background(), 60)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, 60)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), l.Stats().TokenWaits)
}

func TestConcurrencyLimit(t *testing.T) {
	l := New("ollama", Config{MaxConcurrency: 2})

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), 100)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	stats := l.Stats()
	assert.Zero(t, stats.ActiveRequests)
	assert.Equal(t, 2, stats.MaxConcurrency)
}

func TestCancelledSlotWait(t *testing.T) {
	l := New("ollama", Config{MaxConcurrency: 1})
	release, err := l.Acquire(context.Background(), 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), l.Stats().SlotWaits)
}

func TestSetSkipsUnlimitedProviders(t *testing.T) {
	s := NewSet(map[string]Config{"ollama": {MaxConcurrency: 1}, "google": {}})
	assert.NotNil(t, s.For("ollama"))
	assert.Nil(t, s.For("google"))
	assert.Len(t, s.Stats(), 1)
}

func TestMiddlewareReleasesSlot(t *testing.T) {
	l := New("ollama", Config{MaxConcurrency: 1, TokensPerMinute: 100000})
	client := llm.Chain(mocks.NewMockLLMClient(), Middleware(l, nil))

	for i := 0; i < 3; i++ {
		resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("roll initiative")}))
		require.NoError(t, err)
		assert.Equal(t, "Mock response", resp.Content)
	}
	stats := l.Stats()
	assert.Zero(t, stats.ActiveRequests)
	assert.Less(t, stats.AvailableTokens, 100000)
}
