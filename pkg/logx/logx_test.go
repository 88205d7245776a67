package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "feedsync"))
	log.Info("run finished", Int("leagues", 3), String("comp", "override"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["message"] != "run finished" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["leagues"] != float64(3) {
		t.Fatalf("leagues = %v", m["leagues"])
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("expected caller field in %v", m)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatalf("debug should be disabled")
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn not written: %q", buf.String())
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	log.Error("nothing happens")
}

func TestFormatAlert(t *testing.T) {
	line := []byte(`{"level":"error","time":"x","message":"league sync failed","league":"l1","feed":"trade"}` + "\n")
	got := formatAlert(line)
	want := "[ERROR] league sync failed\n- feed=trade\n- league=l1"
	if got != want {
		t.Fatalf("formatAlert = %q, want %q", got, want)
	}
	if got := formatAlert([]byte("plain text")); got != "plain text" {
		t.Fatalf("formatAlert(raw) = %q", got)
	}
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"", "info", "WARNING", "trace"} {
		if !ValidLevel(lvl) {
			t.Fatalf("ValidLevel(%q) = false", lvl)
		}
	}
	if ValidLevel("loud") {
		t.Fatalf("ValidLevel(loud) = true")
	}
}
