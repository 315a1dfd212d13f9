// Package timeout provides per-request timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"dungeonmaster/pkg/agent/llm"
)

// Middleware gives each request its own deadline. A zero duration disables it.
// An expired per-request deadline surfaces as context.DeadlineExceeded, which the
// retry classifier treats as transient.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}
