package config_test

import (
	"mtriage_go/config"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	if cfg.Triage.Sandbox.DefaultTimeout() != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.Triage.Sandbox.DefaultTimeout())
	}
	if cfg.Triage.Sandbox.MaxTimeout() != 5*time.Minute {
		t.Errorf("MaxTimeout = %v, want 5m", cfg.Triage.Sandbox.MaxTimeout())
	}
	if cfg.Triage.HTTP.Listen != "127.0.0.1:8419" {
		t.Errorf("Listen = %q, want loopback default", cfg.Triage.HTTP.Listen)
	}
	if cfg.Triage.Rules.Dir != "rules" {
		t.Errorf("Rules.Dir = %q, want rules", cfg.Triage.Rules.Dir)
	}
	if cfg.Triage.Logging.File != "mtriage_go.log" || cfg.Triage.Logging.Level != "info" {
		t.Errorf("Logging = %+v, want default file and info level", cfg.Triage.Logging)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Triage.HTTP.Listen != "127.0.0.1:8419" {
			t.Errorf("Listen = %q, want default", cfg.Triage.HTTP.Listen)
		}
	})

	t.Run("empty path uses defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Triage.Sandbox.Retention() != 10*time.Minute {
			t.Errorf("Retention = %v, want 10m", cfg.Triage.Sandbox.Retention())
		}
	})

	t.Run("values parsed and gaps backfilled", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), "mtriage.yml")
		doc := `
triage:
  rules:
    sealed_bundle: /opt/mtriage/rules.bin
    bundle_key_hex: "00112233"
  sandbox:
    default_timeout_seconds: 45
  external_av:
    command: clamscan
    args: ["--no-summary"]
  logging:
    level: debug
`
		if err := os.WriteFile(p, []byte(doc), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := config.Load(p)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Triage.Rules.SealedBundle != "/opt/mtriage/rules.bin" {
			t.Errorf("SealedBundle = %q", cfg.Triage.Rules.SealedBundle)
		}
		if cfg.Triage.Sandbox.DefaultTimeout() != 45*time.Second {
			t.Errorf("DefaultTimeout = %v, want 45s", cfg.Triage.Sandbox.DefaultTimeout())
		}
		if cfg.Triage.Sandbox.MaxTimeout() != 5*time.Minute {
			t.Errorf("MaxTimeout = %v, want backfilled 5m", cfg.Triage.Sandbox.MaxTimeout())
		}
		if cfg.Triage.ExternalAV.Command != "clamscan" {
			t.Errorf("ExternalAV.Command = %q", cfg.Triage.ExternalAV.Command)
		}
		if cfg.Triage.HTTP.Listen != "127.0.0.1:8419" {
			t.Errorf("Listen = %q, want backfilled default", cfg.Triage.HTTP.Listen)
		}
		if cfg.Triage.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q, want debug", cfg.Triage.Logging.Level)
		}
		if cfg.Triage.Logging.File != "mtriage_go.log" {
			t.Errorf("Logging.File = %q, want backfilled default", cfg.Triage.Logging.File)
		}
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), "broken.yml")
		if err := os.WriteFile(p, []byte("triage: ["), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := config.Load(p); err == nil {
			t.Error("Load(malformed) succeeded, want error")
		}
	})
}
