package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op; it must not panic
	SetLogger(nil)
	Logf("test message %d", 1)
}

func TestUseCharm(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var buf bytes.Buffer
	l, err := NewCharmLogger(CharmOptions{Output: &buf, Level: "info"})
	if err != nil {
		t.Fatalf("NewCharmLogger: %v", err)
	}
	UseCharm(l)

	Logf("[Pipeline] resized to %dx%d", 64, 48)
	Logf("[Watchdog] sensor hang detected")

	out := buf.String()
	if !strings.Contains(out, "[Pipeline] resized to 64x48") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Errorf("expected a WARN level line in %q", out)
	}
}

func TestNewCharmLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewCharmLogger(CharmOptions{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestUseCharmNil(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	UseCharm(nil)
	Logf("silent")
}
