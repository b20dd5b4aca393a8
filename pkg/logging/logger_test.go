package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestJSONLogger_LevelsAndFields checks filtering and field merging.
func TestJSONLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, InfoLevel)

	l.Debug("invisible")
	l.Info("flush complete", Records(10), SegmentPath("data/01.hadro"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if decoded["level"] != "INFO" || decoded["msg"] != "flush complete" {
		t.Errorf("unexpected entry: %v", decoded)
	}
	fields := decoded["fields"].(map[string]any)
	if fields["records"] != float64(10) {
		t.Errorf("records field = %v", fields["records"])
	}
	if fields["segment"] != "data/01.hadro" {
		t.Errorf("segment field = %v", fields["segment"])
	}
}

// TestJSONLogger_With checks pre-set fields appear on every child entry.
func TestJSONLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, DebugLevel).With(Component("memtable"))

	l.Warn("at capacity", Records(50000))

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	fields := decoded["fields"].(map[string]any)
	if fields["component"] != "memtable" {
		t.Errorf("component field missing: %v", fields)
	}
}

// TestErrorField covers nil and non-nil errors.
func TestErrorField(t *testing.T) {
	if f := Error(nil); f.Value != nil {
		t.Errorf("Error(nil).Value = %v", f.Value)
	}
	if f := Error(errors.New("boom")); f.Value != "boom" {
		t.Errorf("Error(err).Value = %v", f.Value)
	}
}

// TestParseLevel pins the accepted spellings.
func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel, "DEBUG": DebugLevel,
		"info": InfoLevel, "WARN": WarnLevel, "warning": WarnLevel,
		"error": ErrorLevel, "garbage": InfoLevel, "": InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
