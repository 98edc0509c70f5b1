package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docflowhq/docflow/internal/config"
	"github.com/docflowhq/docflow/model"
)

// newTestLogger creates a logger that writes JSON to a buffer for assertion.
func newTestLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core)
}

func TestNewLogger_levels(t *testing.T) {
	logger, err := NewLogger(config.ObservabilityConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Sync()

	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info level should be enabled")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level should NOT be enabled at info level")
	}
}

func TestNewLogger_invalidLevel_defaultsToInfo(t *testing.T) {
	logger, err := NewLogger(config.ObservabilityConfig{LogLevel: "bogus"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Sync()

	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("should default to info level")
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should NOT be enabled with invalid level (defaults to info)")
	}
}

func TestWithLogger_and_LoggerFrom(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithLogger(context.Background(), logger)

	if got := LoggerFrom(ctx, nil); got != logger {
		t.Error("LoggerFrom should return the stored logger")
	}

	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom should return fallback when no logger in context")
	}
}

func TestRequestLogger_enrichesWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	rctx := &model.RequestContext{
		SubjectID:     "user-42",
		Department:    "finance",
		CorrelationID: "corr-7",
		TraceID:       "trace-abc",
	}
	ctx := model.WithRequestContext(WithLogger(context.Background(), logger), rctx)

	RequestLogger(ctx, nil).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["subject_id"] != "user-42" {
		t.Errorf("subject_id = %v, want user-42", entry["subject_id"])
	}
	if entry["department"] != "finance" {
		t.Errorf("department = %v, want finance", entry["department"])
	}
	if entry["correlation_id"] != "corr-7" {
		t.Errorf("correlation_id = %v, want corr-7", entry["correlation_id"])
	}
	if entry["trace_id"] != "trace-abc" {
		t.Errorf("trace_id = %v, want trace-abc", entry["trace_id"])
	}
}

func TestRequestLogger_noContext(t *testing.T) {
	fallback := zap.NewNop()
	if got := RequestLogger(context.Background(), fallback); got != fallback {
		t.Error("RequestLogger without a RequestContext should return the plain logger")
	}
}

func TestRedactBody(t *testing.T) {
	body := map[string]any{
		"amount":   1500,
		"password": "hunter2",
		"nested": map[string]any{
			"token": "abc",
			"note":  "keep",
		},
	}

	got := RedactBody(body, []string{"amount"})

	if got["amount"] != "[REDACTED]" {
		t.Errorf("custom sensitive field not redacted: %v", got["amount"])
	}
	if got["password"] != "[REDACTED]" {
		t.Errorf("default sensitive field not redacted: %v", got["password"])
	}
	nested := got["nested"].(map[string]any)
	if nested["token"] != "[REDACTED]" {
		t.Errorf("nested sensitive field not redacted: %v", nested["token"])
	}
	if nested["note"] != "keep" {
		t.Errorf("non-sensitive nested field changed: %v", nested["note"])
	}

	// Original must be untouched.
	if body["password"] != "hunter2" {
		t.Error("RedactBody must not mutate its input")
	}
}

func TestRedactBody_nil(t *testing.T) {
	if RedactBody(nil, nil) != nil {
		t.Error("RedactBody(nil) should return nil")
	}
}
