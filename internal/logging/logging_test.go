package logging

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromConfig(t *testing.T) {
	tests := []struct {
		n    uint32
		want zapcore.Level
	}{
		{0, zapcore.DebugLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.WarnLevel},
		{3, zapcore.ErrorLevel},
		{4, zapcore.DPanicLevel},
		{5, zapcore.FatalLevel},
		{99, zapcore.FatalLevel},
	}
	for _, tt := range tests {
		if got := levelFromConfig(tt.n); got != tt.want {
			t.Errorf("levelFromConfig(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestNewConsoleOnly(t *testing.T) {
	logger, err := New(Config{DisplayLevel: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Sync()

	logger.Info("test message")
}

func TestNewWithFileSink(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		FilePath:     dir,
		FileRoot:     "test",
		FileLevel:    0,
		DisplayLevel: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Sync()

	logger.Info("test message with file sink")

	matches, _ := filepath.Glob(filepath.Join(dir, "test-*.log"))
	if len(matches) != 1 {
		t.Errorf("expected exactly one rotated log file, got %v", matches)
	}
}
