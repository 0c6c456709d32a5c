package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFormatTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentRecurring, Output: &buf})

	logger.WithComponent(ComponentScheduler).Info("pass finished", "due", 2)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if record["component"] != ComponentScheduler {
		t.Errorf("component = %v, want %s", record["component"], ComponentScheduler)
	}
	if strings.Count(buf.String(), `"component"`) != 1 {
		t.Errorf("component attribute repeated: %s", buf.String())
	}
	if record["due"] != float64(2) {
		t.Errorf("due = %v, want 2", record["due"])
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "component=app") {
		t.Errorf("warn record missing or untagged: %s", out)
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().WithOperation(OpStartup).WithError(errors.New("boom")).WithError(nil)

	if fields[FieldOperation] != OpStartup || fields[FieldError] != "boom" {
		t.Errorf("fields = %v", fields)
	}
	if got := len(fields.ToSlice()); got != 4 {
		t.Errorf("ToSlice() has %d elements, want 4", got)
	}
}
