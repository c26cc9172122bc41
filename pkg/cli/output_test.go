package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatText)

	if err := f.FormatTo(&buf, "power is on"); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	if buf.String() != "power is on\n" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatJSON)

	data := map[string]string{"state": "READY", "power": "on"}
	if err := f.FormatTo(&buf, data); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["state"] != "READY" {
		t.Errorf("expected state READY, got %q", decoded["state"])
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected indented JSON output")
	}
}

func TestNewFormatter_UnknownFallsBackToText(t *testing.T) {
	if _, ok := NewFormatter("csv").(*TextFormatter); !ok {
		t.Error("expected unknown format to fall back to text")
	}
}
