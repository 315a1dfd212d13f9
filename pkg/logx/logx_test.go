package logx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, debug bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	UseZap(zap.New(core), debug)
	t.Cleanup(func() {
		UseZap(zap.NewNop(), false)
		SetDebugDomains(nil)
	})
	return logs
}

func TestLoggerTagsComponent(t *testing.T) {
	logs := observe(t, false)

	NewLogger("router").Info("classified %s", "qa_rules")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "classified qa_rules", entries[0].Message)
	assert.Equal(t, "router", entries[0].ContextMap()["component"])
}

func TestDebugSuppressedWhenDisabled(t *testing.T) {
	logs := observe(t, false)

	NewLogger("combat").Debug("hidden")
	Debug(context.Background(), "combat", "hidden too")

	assert.Equal(t, 0, logs.Len())
}

func TestDomainFiltering(t *testing.T) {
	logs := observe(t, true)
	SetDebugDomains([]string{"router"})

	ctx := ContextWithSession(context.Background(), "s-1")
	Debug(ctx, "router", "kept")
	Debug(ctx, "combat", "dropped")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, "s-1", entries[0].ContextMap()["session_id"])
}

func TestWrap(t *testing.T) {
	logs := observe(t, false)

	assert.NoError(t, Wrap(nil, "noop"))

	base := errors.New("disk full")
	err := Wrap(base, "save session")
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "save session: disk full", err.Error())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestConfigureRejectsBadLevel(t *testing.T) {
	err := Configure(Options{Level: "loud"})
	assert.Error(t, err)
}
