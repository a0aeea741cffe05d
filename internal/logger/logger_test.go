package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestToZapLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{DebugLevel, zapcore.DebugLevel},
		{InfoLevel, zapcore.InfoLevel},
		{WarnLevel, zapcore.WarnLevel},
		{ErrorLevel, zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := toZapLevel(tt.in); got != tt.want {
			t.Errorf("toZapLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetReturnsSingleton(t *testing.T) {
	a := Get(WarnLevel)
	b := Get(DebugLevel)
	if a != b {
		t.Error("Get returned different instances")
	}
}

func TestNopAndNamed(t *testing.T) {
	l := Nop().Named("flow")
	l.Infow("discarded", "k", 1)
}
