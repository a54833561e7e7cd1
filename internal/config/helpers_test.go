package config

import (
	"encoding/json"
	"os"
	"testing"

	"pushwatch/pkg/logx"
)

func nopLogger() logx.Logger { return logx.Nop() }

func writeJSON(t *testing.T, path string, cfg *Config) {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}
