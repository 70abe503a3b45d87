package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"nrlengine/internal/config"
)

func TestNewHonorsLevel(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug level not enabled")
	}
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	log, err := New(config.LogConfig{Level: "shouting"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be off at the info fallback")
	}
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info level not enabled")
	}
}

func TestNewUnknownEncoding(t *testing.T) {
	if _, err := New(config.LogConfig{Encoding: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}
