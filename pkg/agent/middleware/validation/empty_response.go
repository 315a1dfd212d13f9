// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"strings"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
)

// EmptyResponseMiddleware turns a successful call with blank content into an
// ErrorTypeEmptyResponse error so the retry runner can try again.
func EmptyResponseMiddleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err //nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				}
				if strings.TrimSpace(resp.Content) == "" {
					return resp, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
						"model "+next.GetModelName()+" returned no content (stop reason: "+resp.StopReason+")")
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
