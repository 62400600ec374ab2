package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roverctl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
address: 10.0.0.5:8080
speed: 180
poll_interval: 500ms
history:
  file: /tmp/history.jsonl
  greptime_endpoint: localhost:4001
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != "10.0.0.5:8080" || cfg.Speed != 180 {
		t.Fatalf("cfg = %+v", cfg)
	}
	d, err := cfg.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if d != 500*time.Millisecond {
		t.Fatalf("poll = %v", d)
	}
	if cfg.History.GreptimeDatabase != "public" {
		t.Fatalf("default greptime database not applied: %q", cfg.History.GreptimeDatabase)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `address: rover.local`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Speed != 128 {
		t.Fatalf("default speed = %d", cfg.Speed)
	}
	d, _ := cfg.Poll()
	if d != time.Second {
		t.Fatalf("default poll = %v", d)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"speed out of range", "speed: 9000"},
		{"speed wrong type", `speed: fast`},
		{"address wrong type", "address: [1, 2]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error for %q", tc.body)
			}
		})
	}
}

func TestLoadRejectsBadPollInterval(t *testing.T) {
	path := writeConfig(t, "poll_interval: sometimes")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable poll_interval")
	}
	path = writeConfig(t, "poll_interval: -1s")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative poll_interval")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
