package retry

import (
	"context"

	"dungeonmaster/pkg/agent/llm"
)

// Middleware returns a middleware function that wraps an LLM client with retry logic.
// Errors are returned unchanged once the runner gives up.
func Middleware(runner *Runner) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				return Do(ctx, runner, next.GetModelName(), func(ctx context.Context) (llm.CompletionResponse, error) {
					return next.Complete(ctx, req)
				})
			},
			next.GetModelName,
		)
	}
}
