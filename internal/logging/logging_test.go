package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	logger, err := New("debug", false)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level to be enabled")
	}

	logger, err = New("bogus", true)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected unknown level to fall back to info")
	}
}

func TestForCandidate(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ForCandidate(zap.New(core), "eng", "jane_doe").Info("evaluated")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx[FieldJob] != "eng" || ctx[FieldCandidate] != "jane_doe" {
		t.Errorf("unexpected fields: %v", ctx)
	}

	if ForCandidate(nil, "", "") == nil {
		t.Error("expected a no-op logger for nil input")
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("  hello world  ", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateForLog("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := TruncateForLog("anything", 0); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestModelFields(t *testing.T) {
	fields := ModelFields("  gemini ", "")
	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	if fields[0].Key != FieldProvider || fields[0].String != "gemini" {
		t.Errorf("unexpected field %+v", fields[0])
	}
}
