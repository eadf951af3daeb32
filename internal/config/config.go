// Package config implements the kernel's ambient configuration layer:
// a viper-backed settings store read from $STRATUM_CONFIG (or
// ./config.yaml / $HOME/.stratum/config.yaml), overridable by
// STRATUM_-prefixed environment variables, with live reload via
// fsnotify so a running daemon picks up edits without restarting.
//
// Grounded on the teacher's internal/config package: a package-level
// viper singleton, Key constants per concern, RegisterXxxDefaults
// functions called from Initialize, and typed Get* wrappers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// v is the package-level viper instance. Every Get*/Set* wrapper reads
// through it; nil until Initialize runs (callers that invoke a getter
// before Initialize get the function's zero value, not a panic).
var v *viper.Viper

// EnvPrefix is prepended to every environment variable viper binds
// (e.g. config key "state.dir" binds to STRATUM_STATE_DIR).
const EnvPrefix = "STRATUM"

// Initialize creates the viper singleton, registers every concern's
// defaults, and loads the config file if one is found. Missing config
// files are not an error: defaults plus environment variables are
// enough to run.
func Initialize() error {
	v = viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".stratum"))
		}
	}

	RegisterRetryDefaults()
	RegisterRuntimeDefaults()
	RegisterPipelineDefaults()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("config: read config file: %w", err)
		}
	}

	return nil
}

// WatchAndReload starts fsnotify-backed live reload of the config file,
// invoking onChange after every reload (nil is fine for callers that
// only want Get* to reflect the new values). A no-op if Initialize
// hasn't run or no config file was found.
func WatchAndReload(onChange func()) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
}

// ResetForTesting discards the viper singleton so the next Initialize
// call starts from a clean slate, free of any Set overrides or stale
// config file bindings left by a previous test.
func ResetForTesting() {
	v = nil
}

// ConfigFileUsed returns the path of the config file viper loaded, or
// "" if none was found.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString, GetBool, GetInt, GetDuration, GetStringSlice mirror
// viper's typed getters, returning the zero value (an empty, non-nil
// slice for GetStringSlice) when v is nil so callers never need a nil
// check of their own.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// SetDefault overrides a key's default value, used by tests and by
// config files whose own RegisterXxxDefaults calls this indirectly via
// viper.
func SetDefault(key string, value interface{}) {
	if v == nil {
		return
	}
	v.SetDefault(key, value)
}

// Set overrides a key for the lifetime of the process, taking
// precedence over both the config file and the environment. A no-op
// when Initialize hasn't run.
func Set(key string, value interface{}) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// AllSettings returns every resolved setting. Returns an empty map when
// Initialize hasn't run.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// ConfigSource names where a resolved value came from, most specific
// first: a CLI flag beats an environment variable, which beats the
// config file, which beats a compiled-in default.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// GetValueSource reports where key's current value was resolved from.
// Flags aren't tracked by viper, so a flag override is never returned
// here — callers combine this with CheckOverrides to report a flag
// shadowing an env var or config file value.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	envKey := EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if _, ok := os.LookupEnv(envKey); ok {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// FlagOverride is one candidate flag value CheckOverrides compares
// against the resolved config source.
type FlagOverride struct {
	Value  interface{}
	WasSet bool
}

// Override describes one key whose effective value came from a source
// other than the config file or defaults.
type Override struct {
	Key          string
	OverriddenBy ConfigSource
}

// CheckOverrides reports, for each flag in flags that was actually set
// on the command line, that it shadows whatever config/env value
// would otherwise apply — used to print "note: --batch-size overrides
// config value" diagnostics.
func CheckOverrides(flags map[string]FlagOverride) []Override {
	var overrides []Override
	for key, f := range flags {
		if !f.WasSet {
			continue
		}
		overrides = append(overrides, Override{Key: key, OverriddenBy: SourceFlag})
	}
	return overrides
}
