package logging

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithLevel(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := NewWithLevel(tt.level)
			if got := log.GetLevel(); got != tt.want {
				t.Errorf("expected level %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewWritesLogFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("log path only follows XDG_STATE_HOME on linux")
	}
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	log := New()
	log.Info().Msg("hello from test")

	path := LogPath()
	if !strings.HasPrefix(path, state) {
		t.Fatalf("expected log path under %s, got %s", state, path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("expected log file to contain message, got %q", string(data))
	}
}
