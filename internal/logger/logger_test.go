package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_WithValidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid json config stdout",
			config:  Config{Level: "debug", Format: "json", Output: "stdout"},
			wantErr: false,
		},
		{
			name:    "valid text config stderr",
			config:  Config{Level: "info", Format: "text", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "invalid level",
			config:  Config{Level: "verbose", Format: "json", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			config:  Config{Level: "debug", Format: "xml", Output: "stdout"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_FileOutputCreatesDirectory(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "vcfping.log")

	log, err := New(Config{Level: "info", Format: "json", Output: logPath})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info("daemon started", Field{Key: "pid", Value: 1234})

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty, want at least one record")
	}
}

func TestLogger_With(t *testing.T) {
	log, err := New(Config{Level: "debug", Format: "text", Output: "stdout"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	child := log.With(Field{Key: "component", Value: "scheduler"})
	if child == nil {
		t.Fatal("With() returned nil")
	}

	// The parent logger is not mutated
	if child == log {
		t.Error("With() should return a new logger")
	}
}
