package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatFor(t *testing.T) {
	tests := []struct {
		file   string
		asJSON bool
		want   OutputFormat
	}{
		{"", false, FormatYAML},
		{"", true, FormatJSON},
		{"takes.json", false, FormatJSON},
		{"takes.JSON", false, FormatJSON},
		{"takes.yaml", false, FormatYAML},
		{"takes.yaml", true, FormatJSON},
		{"takes", false, FormatYAML},
	}
	for _, tt := range tests {
		if got := FormatFor(tt.file, tt.asJSON); got != tt.want {
			t.Errorf("FormatFor(%q, %v) = %q, want %q", tt.file, tt.asJSON, got, tt.want)
		}
	}
}

func TestOutput(t *testing.T) {
	data := map[string]any{"take": "jump", "keyframes": 42}

	tests := []struct {
		name   string
		format OutputFormat
		check  func(t *testing.T, out string)
	}{
		{"json", FormatJSON, func(t *testing.T, out string) {
			var result map[string]any
			if err := json.Unmarshal([]byte(out), &result); err != nil {
				t.Fatalf("Invalid JSON output: %v", err)
			}
			if result["take"] != "jump" {
				t.Errorf("take = %v, want %q", result["take"], "jump")
			}
			if !strings.Contains(out, "\n  \"") {
				t.Errorf("JSON should be indented, got: %s", out)
			}
		}},
		{"yaml", FormatYAML, func(t *testing.T, out string) {
			if !strings.Contains(out, "take: jump") {
				t.Errorf("Output should contain 'take: jump', got: %s", out)
			}
		}},
		{"default is yaml", "", func(t *testing.T, out string) {
			if !strings.Contains(out, "keyframes: 42") {
				t.Errorf("Default format should be YAML, got: %s", out)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Output(data, OutputOptions{Format: tt.format, Writer: &buf}); err != nil {
				t.Fatalf("Output error: %v", err)
			}
			tt.check(t, buf.String())
		})
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := Output("data", OutputOptions{Format: "table", File: path}); err == nil {
		t.Error("Output should fail for unsupported format")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("a failed encode should not create the file, stat error = %v", err)
	}
}

func TestOutput_ToFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "output.json")

	err := Output(map[string]string{"key": "value"}, OutputOptions{
		Format: FormatFor(filePath, false),
		File:   filePath,
	})
	if err != nil {
		t.Fatalf("Output error: %v", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	var result map[string]string
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Invalid JSON in file: %v", err)
	}
	if result["key"] != "value" {
		t.Errorf("key = %q, want %q", result["key"], "value")
	}
}
