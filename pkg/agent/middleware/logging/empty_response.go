// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"dungeonmaster/pkg/agent/llm"
	"dungeonmaster/pkg/agent/llmerrors"
	"dungeonmaster/pkg/logx"
)

// Middleware logs one line per call and dumps a sanitized prompt when the
// model returns an empty response. Errors pass through unchanged.
func Middleware(consumer string, logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				elapsed := time.Since(start).Milliseconds()

				switch {
				case err == nil:
					logx.Debug(ctx, "llm", "%s via %s ok in %dms (%d chars)", consumer, next.GetModelName(), elapsed, len(resp.Content))
				case llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse):
					logger.Error("Empty response for %s from %s after %dms", consumer, next.GetModelName(), elapsed)
					for i := range req.Messages {
						logger.Error("  [%d] %s: %s", i, req.Messages[i].Role, SanitizePrompt(req.Messages[i].Content, 400))
					}
				default:
					logger.Warn("%s via %s failed after %dms: %v", consumer, next.GetModelName(), elapsed, err)
				}
				return resp, err //nolint:wrapcheck // Middleware intentionally passes through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// SanitizePrompt shortens large prompts to their head and tail plus a hash of the full text.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}
	half := maxChars / 2
	if half < 100 {
		half = 100
	}
	if 2*half >= len(prompt) {
		return prompt
	}
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s...[%d chars, hash:%x]...%s", prompt[:half], len(prompt), sum[:8], prompt[len(prompt)-half:])
}
