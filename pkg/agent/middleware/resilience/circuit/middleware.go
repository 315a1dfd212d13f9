package circuit

import (
	"context"
	"errors"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

// Middleware rejects requests while b is open. Only transient provider
// failures count against the breaker; a bad prompt or a cancelled turn does not.
func Middleware(b *Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := b.Allow(); err != nil {
					return llm.CompletionResponse{}, err
				}

				resp, err := next.Complete(ctx, req)
				switch {
				case err == nil:
					b.Record(true)
				case errors.Is(err, context.Canceled):
				case llmerrors.IsTransient(err):
					b.Record(false)
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
