// Package logx provides component-scoped logging on top of zap with domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a component-scoped logger with printf-style helpers.
type Logger struct {
	component string
}

// Options controls the process-wide zap backend.
type Options struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoder with colored levels
	File        string // optional extra output path
	Domains     []string
}

type ctxKey struct{}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	debugOn bool
	domains map[string]bool // nil = all domains
)

func init() { //nolint:gochecknoinits // env-driven defaults before Configure is called
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if l, err := cfg.Build(); err == nil {
		base = l
	}
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugOn = true
	}
	if v := os.Getenv("DEBUG_DOMAINS"); v != "" {
		setDomains(strings.Split(v, ","))
	}
}

// Configure replaces the zap backend according to opts.
func Configure(opts Options) error {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	base = l
	debugOn = level == zapcore.DebugLevel
	mu.Unlock()

	if len(opts.Domains) > 0 {
		SetDebugDomains(opts.Domains)
	}
	return nil
}

// UseZap installs an existing zap logger, typically a zaptest/observer core in tests.
func UseZap(l *zap.Logger, debug bool) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	debugOn = debug
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func setDomains(list []string) {
	domains = make(map[string]bool)
	for _, d := range list {
		if d = strings.TrimSpace(d); d != "" {
			domains[d] = true
		}
	}
	if len(domains) == 0 {
		domains = nil
	}
}

// SetDebugDomains limits domain debug output. An empty list enables all domains.
func SetDebugDomains(list []string) {
	mu.Lock()
	defer mu.Unlock()
	setDomains(list)
}

// IsDebugEnabledForDomain reports whether Debug output for domain is emitted.
func IsDebugEnabledForDomain(domain string) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !debugOn {
		return false
	}
	return domains == nil || domains[domain]
}

func sugar(component string) *zap.SugaredLogger {
	mu.RLock()
	l := base
	mu.RUnlock()
	return l.With(zap.String("component", component)).Sugar()
}

// NewLogger returns a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// WithComponent returns a copy of the logger bound to another component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) Debug(format string, args ...any) {
	mu.RLock()
	enabled := debugOn
	mu.RUnlock()
	if !enabled {
		return
	}
	sugar(l.component).Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	sugar(l.component).Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	sugar(l.component).Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	sugar(l.component).Errorf(format, args...)
}

// ContextWithSession tags ctx so domain debug lines carry the session ID.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sessionID)
}

// SessionFromContext returns the session ID stored by ContextWithSession.
func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Debug logs a domain-scoped debug line. Enable with DEBUG=1, filter with DEBUG_DOMAINS=router,combat.
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	s := sugar(domain)
	if id := SessionFromContext(ctx); id != "" {
		s = s.With("session_id", id)
	}
	s.Debugf(format, args...)
}

var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
