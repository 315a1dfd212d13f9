package ratelimit

import (
	"context"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/tokenbudget"
)

// Middleware acquires from l before each request. The estimate is the
// prompt's token count plus the requested completion budget.
func Middleware(l *Limiter, counter *tokenbudget.Counter) llm.Middleware {
	if counter == nil {
		counter = tokenbudget.DefaultCounter()
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				estimate := req.MaxTokens
				for i := range req.Messages {
					estimate += counter.Count(req.Messages[i].Content)
				}

				release, err := l.Acquire(ctx, estimate)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()

				return next.Complete(ctx, req) //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
