package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{env: "dev", want: zerolog.DebugLevel},
		{env: "prod", want: zerolog.InfoLevel},
		{env: "dev", level: "warn", want: zerolog.WarnLevel},
		{env: "prod", level: "garbage", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := NewLogger(tt.env, tt.level).GetLevel(); got != tt.want {
			t.Fatalf("NewLogger(%q, %q) level = %v, want %v", tt.env, tt.level, got, tt.want)
		}
	}
}
