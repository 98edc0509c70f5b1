package observability

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docflowhq/docflow/internal/config"
	"github.com/docflowhq/docflow/model"
)

type loggerKey struct{}

// NewLogger builds the process-wide JSON logger. An unparseable level falls
// back to info rather than failing startup.
//
// Level conventions across the codebase:
//   - error: infrastructure failures, unhandled panics, 5xx responses
//   - warn:  4xx responses, degraded JWKS refresh, skipped sweep ticks
//   - info:  request completion, workflow transitions, seeding, sweeps
//   - debug: cache activity, assignment resolution, submitted form data
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback when none is stored.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger enriches the context logger with the caller's identity and
// correlation fields so every line of a request shares them.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := make([]zap.Field, 0, 4)
	fields = append(fields,
		zap.String("subject_id", rctx.SubjectID),
		zap.String("department", rctx.Department),
		zap.String("correlation_id", rctx.CorrelationID),
	)
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return logger.With(fields...)
}

// sensitiveDefaults covers field names that never belong in logs regardless
// of what a template's form schema declares.
var sensitiveDefaults = []string{
	"password", "secret", "token", "access_token", "refresh_token",
	"api_key", "authorization", "credit_card", "ssn", "pin",
}

// RedactBody returns a copy of body with sensitive values replaced by
// "[REDACTED]". Extra field names extend the built-in set. Used for
// debug-level logging of submitted form data; the input is never mutated.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}

	blocked := make(map[string]struct{}, len(sensitiveDefaults)+len(extra))
	for _, f := range sensitiveDefaults {
		blocked[f] = struct{}{}
	}
	for _, f := range extra {
		blocked[f] = struct{}{}
	}

	out := make(map[string]any, len(body))
	for k, v := range body {
		if _, hit := blocked[k]; hit {
			out[k] = "[REDACTED]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = RedactBody(nested, extra)
			continue
		}
		out[k] = v
	}
	return out
}
