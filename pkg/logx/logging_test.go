package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(zerolog.New(&buf)).With(String("comp", "router"))
	log.Info("flushed", Int("records", 3))

	out := buf.String()
	for _, want := range []string{`"comp":"router"`, `"records":3`, `"message":"flushed"`, `"caller":"logging_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	log.Error("ignored")
	if Nop().IsZero() {
		t.Fatal("Nop() is an explicit logger, not the zero value")
	}
}

func TestValidLevel(t *testing.T) {
	for _, ok := range []string{"", "debug", "INFO", " warn ", "error", "trace"} {
		if !ValidLevel(ok) {
			t.Fatalf("ValidLevel(%q) = false", ok)
		}
	}
	if ValidLevel("verbose") {
		t.Fatal("ValidLevel(verbose) = true")
	}
}

func TestServiceApplySwitchesLevel(t *testing.T) {
	dir := t.TempDir()
	svc, log := NewService(Config{Level: "info", File: FileConfig{Enabled: true, Path: dir + "/a.log"}})
	t.Cleanup(func() { _ = svc.Close() })

	if log.Enabled(LevelDebug) {
		t.Fatal("debug should be disabled at info")
	}
	if err := svc.Apply(Config{Level: "warning", File: FileConfig{Enabled: true, Path: dir + "/a.log"}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("existing logger should follow the new warn level")
	}
	if err := svc.Apply(Config{File: FileConfig{Enabled: true, Path: dir + "/missing/x.log"}}); err == nil {
		t.Fatal("expected error for unopenable log file")
	}
}
