package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeTransient},
		{502, ErrorTypeTransient},
		{503, ErrorTypeTransient},
		{504, ErrorTypeTransient},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{400, ErrorTypeBadPrompt},
		{404, ErrorTypeNotFound},
		{418, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForStatus(tt.status))
		})
	}
}

func TestIsTransient(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", NewError(ErrorTypeRateLimit, "slow down"), true},
		{"5xx", FromStatus("openai", 503, nil), true},
		{"empty", NewError(ErrorTypeEmptyResponse, "no content"), true},
		{"auth", FromStatus("openai", 401, nil), false},
		{"bad request", FromStatus("openai", 400, nil), false},
		{"not found", FromStatus("openai", 404, nil), false},
		{"unknown", NewError(ErrorTypeUnknown, "?"), false},
		{"plain error", errors.New("boom"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"dial failure", dialErr, true},
		{"wrapped classified", fmt.Errorf("narrator: %w", NewError(ErrorTypeTransient, "reset")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestErrorUnwrapAndType(t *testing.T) {
	cause := errors.New("upstream")
	err := fmt.Errorf("wrapped: %w", NewErrorWithCause(ErrorTypeAuth, cause, "bad key"))

	assert.True(t, Is(err, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "LLM error (auth): bad key")
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("ollama", nil))
	assert.ErrorIs(t, Classify("ollama", context.Canceled), context.Canceled)

	tests := []struct {
		msg  string
		want ErrorType
	}{
		{"dial tcp 127.0.0.1:11434: connect: connection refused", ErrorTypeTransient},
		{"You exceeded your current quota", ErrorTypeRateLimit},
		{"invalid api key provided", ErrorTypeAuth},
		{`model "llama9" not found, try pulling it first`, ErrorTypeNotFound},
		{"prompt is too large for the context window", ErrorTypeBadPrompt},
		{"something odd", ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := Classify("ollama", errors.New(tt.msg))
			assert.Equal(t, tt.want, TypeOf(err))
			var llmErr *Error
			if assert.ErrorAs(t, err, &llmErr) {
				assert.Equal(t, "ollama", llmErr.Provider)
			}
		})
	}
}
