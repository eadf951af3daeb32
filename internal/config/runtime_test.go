package config

import (
	"testing"
)

func TestIsRuntimeKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"runtime.state_dir", true},
		{"runtime.anything", true},
		{"runtime.", true},
		{"retry.max-attempts", false},
		{"engine.batch_size", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsRuntimeKey(tt.key); got != tt.want {
				t.Errorf("IsRuntimeKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestLookupRuntimeKey(t *testing.T) {
	rk := LookupRuntimeKey("runtime.state_dir")
	if rk == nil {
		t.Fatal("expected runtime.state_dir to be a known key")
	}
	if rk.EnvVar != "STRATUM_STATE_DIR" {
		t.Errorf("expected EnvVar STRATUM_STATE_DIR, got %s", rk.EnvVar)
	}

	rk = LookupRuntimeKey("runtime.nonexistent")
	if rk != nil {
		t.Error("expected nil for unknown key")
	}
}

func TestValidateRuntimeKey_Known(t *testing.T) {
	if err := ValidateRuntimeKey("runtime.log_level", "debug"); err != nil {
		t.Errorf("unexpected error for valid log level: %v", err)
	}
	if err := ValidateRuntimeKey("runtime.log_level", "verbose"); err == nil {
		t.Error("expected error for invalid log level")
	}

	if err := ValidateRuntimeKey("runtime.log_json", "true"); err != nil {
		t.Errorf("unexpected error for valid bool: %v", err)
	}
	if err := ValidateRuntimeKey("runtime.log_json", "maybe"); err == nil {
		t.Error("expected error for invalid bool")
	}

	if err := ValidateRuntimeKey("runtime.otel_insecure", "1"); err != nil {
		t.Errorf("unexpected error for valid bool: %v", err)
	}
}

func TestValidateRuntimeKey_Unknown(t *testing.T) {
	err := ValidateRuntimeKey("runtime.unknown_key", "value")
	if err == nil {
		t.Error("expected error for unknown runtime key")
	}
}

func TestRuntimeKeyEnvMap(t *testing.T) {
	m := RuntimeKeyEnvMap()

	if m["runtime.state_dir"] != "STRATUM_STATE_DIR" {
		t.Errorf("expected STRATUM_STATE_DIR, got %s", m["runtime.state_dir"])
	}
	if m["runtime.nats_url"] != "STRATUM_NATS_URL" {
		t.Errorf("expected STRATUM_NATS_URL, got %s", m["runtime.nats_url"])
	}
}

func TestAllRuntimeKeysHaveDescriptions(t *testing.T) {
	for _, rk := range RuntimeKeys {
		if rk.Description == "" {
			t.Errorf("runtime key %q has no description", rk.Key)
		}
	}
}

func TestRuntimeKeyNoDuplicates(t *testing.T) {
	seen := make(map[string]bool)
	for _, rk := range RuntimeKeys {
		if seen[rk.Key] {
			t.Errorf("duplicate runtime key: %s", rk.Key)
		}
		seen[rk.Key] = true
	}
}

func TestRuntimeDefaultsRegistered(t *testing.T) {
	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if got := GetString("runtime.state_dir"); got != "$HOME/.stratum/state" {
		t.Errorf("runtime.state_dir = %q, want \"$HOME/.stratum/state\"", got)
	}
	if got := GetString("runtime.shutdown_timeout"); got != "30s" {
		t.Errorf("runtime.shutdown_timeout = %q, want \"30s\"", got)
	}
	if got := GetString("runtime.progress_addr"); got != ":7777" {
		t.Errorf("runtime.progress_addr = %q, want \":7777\"", got)
	}
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"3306", true},
		{"1", true},
		{"65535", true},
		{"0", false},
		{"65536", false},
		{"-1", false},
		{"abc", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := validatePort(tt.value)
			if tt.valid && err != nil {
				t.Errorf("validatePort(%q) unexpected error: %v", tt.value, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("validatePort(%q) expected error, got nil", tt.value)
			}
		})
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if err := validateLogLevel(level); err != nil {
			t.Errorf("validateLogLevel(%q) unexpected error: %v", level, err)
		}
	}
	if err := validateLogLevel("trace"); err == nil {
		t.Error("expected error for invalid log level 'trace'")
	}
}

func TestValidateBool(t *testing.T) {
	for _, val := range []string{"true", "false", "1", "0", "yes", "no"} {
		if err := validateBool(val); err != nil {
			t.Errorf("validateBool(%q) unexpected error: %v", val, err)
		}
	}
	if err := validateBool("maybe"); err == nil {
		t.Error("expected error for invalid bool 'maybe'")
	}
}
