package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", "debug", true, true},
		{"warn", "warn", false, false},
		{"unknown falls back to info", "chatty", false, true},
		{"empty falls back to info", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Options{Level: tt.level, Output: &buf})
			l.Debug("debug line")
			l.Info("info line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v\n%s", got, tt.wantDebug, out)
			}
			if got := strings.Contains(out, "info line"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v\n%s", got, tt.wantInfo, out)
			}
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Name: "tslgraph", Level: "info", JSON: true, Output: &buf})
	l.Named("codec").Warn("node skipped", "type", "Nope")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, buf.String())
	}
	if entry["@message"] != "node skipped" || entry["@module"] != "tslgraph.codec" || entry["type"] != "Nope" {
		t.Errorf("entry = %v", entry)
	}
}
