package config

import (
	"fmt"
	"strconv"
	"strings"
)

// RuntimeKey describes a runtime.* configuration key: an ambient setting
// that is also bindable as an environment variable, the way an operator
// running stratum as a daemon would set it without a config file.
type RuntimeKey struct {
	Key         string // Full key name (e.g., "runtime.state_dir")
	Description string
	EnvVar      string // corresponding env var name (empty = no env mapping)
	Secret      bool   // if true, must come from the environment, never config.yaml
	Required    bool
	Default     string
	Validate    func(string) error
}

// RuntimeKeys defines every runtime.* configuration key the kernel reads
// at startup (spec.md §4.1 state dir, §4.10 event bus attachment, §8
// telemetry exporter).
var RuntimeKeys = []RuntimeKey{
	{
		Key:         "runtime.state_dir",
		Description: "directory holding the WAL and checkpoint files for resumable runs",
		EnvVar:      "STRATUM_STATE_DIR",
		Default:     "$HOME/.stratum/state",
	},
	{
		Key:         "runtime.shutdown_timeout",
		Description: "how long the kernel waits for an in-flight item to finish after cancellation",
		EnvVar:      "STRATUM_SHUTDOWN_TIMEOUT",
		Default:     "30s",
	},
	{
		Key:         "runtime.log_level",
		Description: "log level (debug, info, warn, error)",
		EnvVar:      "STRATUM_LOG_LEVEL",
		Default:     "info",
		Validate:    validateLogLevel,
	},
	{
		Key:         "runtime.log_json",
		Description: "emit structured JSON logs instead of console-formatted ones",
		EnvVar:      "STRATUM_LOG_JSON",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "runtime.nats_url",
		Description: "NATS JetStream URL the event bus publishes to for durable, cross-process fan-out",
		EnvVar:      "STRATUM_NATS_URL",
	},
	{
		Key:         "runtime.otel_endpoint",
		Description: "OTLP/HTTP endpoint metrics are exported to (traces always render to stdout)",
		EnvVar:      "STRATUM_OTEL_ENDPOINT",
	},
	{
		Key:         "runtime.otel_insecure",
		Description: "disable TLS when dialing the OTLP exporter",
		EnvVar:      "STRATUM_OTEL_INSECURE",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "runtime.progress_addr",
		Description: "HTTP listen address serving /progress for `stratum progress --watch`",
		EnvVar:      "STRATUM_PROGRESS_ADDR",
		Default:     ":7777",
	},
}

// runtimeKeyMap is a lookup table built from RuntimeKeys.
var runtimeKeyMap map[string]*RuntimeKey

func init() {
	runtimeKeyMap = make(map[string]*RuntimeKey, len(RuntimeKeys))
	for i := range RuntimeKeys {
		runtimeKeyMap[RuntimeKeys[i].Key] = &RuntimeKeys[i]
	}
}

// RegisterRuntimeDefaults registers every runtime.* key's default value
// with viper. Called from Initialize() in config.go.
func RegisterRuntimeDefaults() {
	if v == nil {
		return
	}
	for _, rk := range RuntimeKeys {
		if rk.Default != "" {
			v.SetDefault(rk.Key, rk.Default)
		}
	}
}

// IsRuntimeKey returns true if the key is in the runtime.* namespace.
func IsRuntimeKey(key string) bool {
	return strings.HasPrefix(key, "runtime.")
}

// LookupRuntimeKey returns the RuntimeKey definition if key is known.
// Returns nil if the key is not recognized.
func LookupRuntimeKey(key string) *RuntimeKey {
	return runtimeKeyMap[key]
}

// ValidateRuntimeKey checks whether a runtime.* key is known and the
// value is valid. Returns nil if valid, or an error describing the
// problem.
func ValidateRuntimeKey(key, value string) error {
	rk := runtimeKeyMap[key]
	if rk == nil {
		known := make([]string, 0, len(RuntimeKeys))
		for _, k := range RuntimeKeys {
			known = append(known, k.Key)
		}
		return fmt.Errorf("unknown runtime key %q; valid keys: %s", key, strings.Join(known, ", "))
	}

	if rk.Secret {
		return fmt.Errorf("key %q must come from the environment, not config.yaml", key)
	}

	if rk.Validate != nil {
		if err := rk.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}

	return nil
}

// RuntimeKeyEnvMap returns a mapping from runtime.* key to environment
// variable name.
func RuntimeKeyEnvMap() map[string]string {
	m := make(map[string]string, len(RuntimeKeys))
	for _, rk := range RuntimeKeys {
		if rk.EnvVar != "" {
			m[rk.Key] = rk.EnvVar
		}
	}
	return m
}

// Validation helpers

func validatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of: debug, info, warn, error; got %q", value)
	}
}

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}
