package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hatlonely/ormx/log/writer"
	"github.com/hatlonely/ormx/ref"
)

func TestNewSLogWithOptions(t *testing.T) {
	tests := []struct {
		name    string
		options *SLogOptions
		wantErr bool
	}{
		{
			name:    "nil options",
			options: nil,
			wantErr: true,
		},
		{
			name:    "default console output",
			options: &SLogOptions{Level: "info"},
		},
		{
			name: "console output with options",
			options: &SLogOptions{
				Level:  "debug",
				Format: "json",
				Output: &ref.TypeOptions{
					Type:    "ConsoleWriter",
					Options: &writer.ConsoleWriterOptions{Target: "stderr"},
				},
			},
		},
		{
			name:    "invalid level",
			options: &SLogOptions{Level: "invalid"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			options: &SLogOptions{Level: "info", Format: "invalid"},
			wantErr: true,
		},
		{
			name: "unknown writer",
			options: &SLogOptions{
				Output: &ref.TypeOptions{Type: "NotExistWriter"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewSLogWithOptions(tt.options)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSLogWithOptions() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && l == nil {
				t.Error("NewSLogWithOptions() returned nil logger without error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"fatal", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSLogFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := NewSLogWithOptions(&SLogOptions{
		Level:  "debug",
		Format: "json",
		Output: &ref.TypeOptions{
			Type:    "FileWriter",
			Options: &writer.FileWriterOptions{Path: path},
		},
		Fields: map[string]any{"service": "ormx"},
	})
	if err != nil {
		t.Fatalf("NewSLogWithOptions() error = %v", err)
	}

	l.With("table", "users").Info("query", "sql", "SELECT 1")
	l.Debug("debug message")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), data)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if record["service"] != "ormx" || record["table"] != "users" || record["sql"] != "SELECT 1" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestSLogLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLog(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	l.Info("hidden")
	l.WithGroup("orm").Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %s", out)
	}
	if !strings.Contains(out, "orm.key=value") {
		t.Errorf("expected grouped attribute, got: %s", out)
	}
}
