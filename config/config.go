package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Triage TriageConfig `yaml:"triage"`
}

// TriageConfig is the project configuration.
type TriageConfig struct {
	Rules      RulesConfig      `yaml:"rules"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	ExternalAV ExternalAVConfig `yaml:"external_av"`
	HTTP       HTTPConfig       `yaml:"http"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RulesConfig points at the signature rule sources. When both are set
// the sealed bundle wins, the plain directory is the development path.
type RulesConfig struct {
	Dir          string `yaml:"dir"`
	SealedBundle string `yaml:"sealed_bundle"`
	BundleKeyHex string `yaml:"bundle_key_hex"`
}

// SandboxConfig controls behavioral execution. Durations are plain
// seconds in the file.
type SandboxConfig struct {
	DefaultTimeoutSec int `yaml:"default_timeout_seconds"`
	MaxTimeoutSec     int `yaml:"max_timeout_seconds"`
	RetentionSec      int `yaml:"retention_seconds"`
}

func (s SandboxConfig) DefaultTimeout() time.Duration {
	return time.Duration(s.DefaultTimeoutSec) * time.Second
}

func (s SandboxConfig) MaxTimeout() time.Duration {
	return time.Duration(s.MaxTimeoutSec) * time.Second
}

func (s SandboxConfig) Retention() time.Duration {
	return time.Duration(s.RetentionSec) * time.Second
}

// ExternalAVConfig is the optional external antivirus hook. The command
// is invoked with the sample copy path appended, a nonzero exit means
// detection and contributes one high-weight finding.
type ExternalAVConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// HTTPConfig controls the local API daemon.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls log output. Level accepts the logrus level
// names, unknown values fall back to info.
type LoggingConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when no file is provided.
func Defaults() *Config {
	return &Config{
		Triage: TriageConfig{
			Rules: RulesConfig{Dir: "rules"},
			Sandbox: SandboxConfig{
				DefaultTimeoutSec: 30,
				MaxTimeoutSec:     300,
				RetentionSec:      600,
			},
			HTTP:    HTTPConfig{Listen: "127.0.0.1:8419"},
			Logging: LoggingConfig{File: "mtriage_go.log", Level: "info"},
		},
	}
}

// Load reads a YAML config file, falling back to defaults for anything
// unset. A missing file is not an error, the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Triage.Sandbox.DefaultTimeoutSec <= 0 {
		cfg.Triage.Sandbox.DefaultTimeoutSec = 30
	}
	if cfg.Triage.Sandbox.MaxTimeoutSec <= 0 {
		cfg.Triage.Sandbox.MaxTimeoutSec = 300
	}
	if cfg.Triage.HTTP.Listen == "" {
		cfg.Triage.HTTP.Listen = "127.0.0.1:8419"
	}
	if cfg.Triage.Logging.File == "" {
		cfg.Triage.Logging.File = "mtriage_go.log"
	}
	if cfg.Triage.Logging.Level == "" {
		cfg.Triage.Logging.Level = "info"
	}
	return cfg, nil
}
