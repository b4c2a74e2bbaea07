package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestConfigure_Level(t *testing.T) {
	var buf bytes.Buffer
	Configure("info", "json", &buf)
	t.Cleanup(func() { Configure("warn", "console", os.Stderr) })

	Debug("hidden", "k", 1)
	Info("server taken", "id", "srv-1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, "server taken") || !strings.Contains(out, "srv-1") {
		t.Errorf("info line missing: %s", out)
	}
}
