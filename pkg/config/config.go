// Package config holds the recognized configuration surface of the
// awareness core. Values load from environment variables with sane
// defaults; YAML profiles can override the full set.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CELRule is an operator-supplied ethics rule: a named CEL expression
// evaluated alongside the built-in rule set.
type CELRule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// Config is the complete configuration of the core.
type Config struct {
	SchemaVersion       string    `yaml:"schema_version" json:"schema_version"`
	ConsentTokenMode    string    `yaml:"consent_token_mode" json:"consent_token_mode"` // "pattern" | "jwt"
	ConsentTokenPattern string    `yaml:"consent_token_pattern" json:"consent_token_pattern"`
	DestructiveMarkers  []string  `yaml:"destructive_action_markers" json:"destructive_action_markers"`
	EthicsCELRules      []CELRule `yaml:"ethics_cel_rules" json:"ethics_cel_rules"`
	FibonacciWindows    []int     `yaml:"fibonacci_windows" json:"fibonacci_windows"`
	SequenceLength      int       `yaml:"sequence_length" json:"sequence_length"`
	CoherenceFloor      float64   `yaml:"coherence_floor" json:"coherence_floor"`

	StoreBackend      string `yaml:"store_backend" json:"store_backend"` // "file" | "sqlite" | "postgres"
	LogRoot           string `yaml:"log_root" json:"log_root"`
	DatabaseURL       string `yaml:"database_url" json:"database_url"`
	RedisAddr         string `yaml:"redis_addr" json:"redis_addr"`
	AppendMaxAttempts int    `yaml:"append_max_attempts" json:"append_max_attempts"`

	EventTimeout time.Duration `yaml:"event_timeout" json:"event_timeout"`
	IntakeRate   float64       `yaml:"intake_rate" json:"intake_rate"` // events/sec, 0 = unlimited
	IntakeBurst  int           `yaml:"intake_burst" json:"intake_burst"`

	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"` // empty = telemetry disabled
	LogLevel     string `yaml:"log_level" json:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		SchemaVersion:       "1.0.0",
		ConsentTokenMode:    "pattern",
		ConsentTokenPattern: `^[A-Za-z0-9_\-\.]{16,}$`,
		DestructiveMarkers:  []string{"delete", "purge", "erase", "drop", "revoke"},
		FibonacciWindows:    []int{1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144},
		SequenceLength:      144,
		CoherenceFloor:      0.777,
		StoreBackend:        "file",
		LogRoot:             "logs/awareness",
		AppendMaxAttempts:   5,
		EventTimeout:        10 * time.Second,
		IntakeRate:          0,
		IntakeBurst:         1,
		LogLevel:            "INFO",
	}
}

// Load builds configuration from environment variables on top of defaults.
func Load() *Config {
	cfg := Defaults()

	if v := os.Getenv("AWARENESS_SCHEMA_VERSION"); v != "" {
		cfg.SchemaVersion = v
	}
	if v := os.Getenv("AWARENESS_CONSENT_MODE"); v != "" {
		cfg.ConsentTokenMode = v
	}
	if v := os.Getenv("AWARENESS_CONSENT_PATTERN"); v != "" {
		cfg.ConsentTokenPattern = v
	}
	if v := os.Getenv("AWARENESS_DESTRUCTIVE_MARKERS"); v != "" {
		cfg.DestructiveMarkers = splitList(v)
	}
	if v := os.Getenv("AWARENESS_FIBONACCI_WINDOWS"); v != "" {
		if ws := splitIntList(v); len(ws) > 0 {
			cfg.FibonacciWindows = ws
		}
	}
	if v := os.Getenv("AWARENESS_SEQUENCE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SequenceLength = n
		}
	}
	if v := os.Getenv("AWARENESS_COHERENCE_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.CoherenceFloor = f
		}
	}
	if v := os.Getenv("AWARENESS_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("AWARENESS_LOG_ROOT"); v != "" {
		cfg.LogRoot = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("AWARENESS_APPEND_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AppendMaxAttempts = n
		}
	}
	if v := os.Getenv("AWARENESS_EVENT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EventTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// splitIntList parses a comma-separated list of positive ints. Any invalid
// element rejects the whole list so a typo never half-applies.
func splitIntList(v string) []int {
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		n, err := strconv.Atoi(trimmed)
		if err != nil || n <= 0 {
			return nil
		}
		out = append(out, n)
	}
	return out
}
