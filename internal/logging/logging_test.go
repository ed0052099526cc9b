package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "WARN", "text")

	logger.Info("hidden")
	logger.Warn("shown", "user_id", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "user_id=4") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "", "json").Info("sweep", "fired", 2)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["msg"] != "sweep" || line["fired"] != float64(2) {
		t.Errorf("line = %v", line)
	}
}
