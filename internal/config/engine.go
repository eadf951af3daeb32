package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/stanstork/stratum/internal/plan"
)

// validCopyColumnsPolicies is the set of allowed copy_columns values.
var validCopyColumnsPolicies = map[plan.CopyColumnsPolicy]bool{
	plan.CopyColumnsAll:    true,
	plan.CopyColumnsMapOnly: true,
}

// validValidationActions is the set of allowed validation actions.
var validValidationActions = map[plan.ValidationAction]bool{
	plan.ActionSkip:     true,
	plan.ActionFail:     true,
	plan.ActionWarn:     true,
	plan.ActionContinue: true,
}

// validPaginateStrategies is the set of allowed pagination strategies.
var validPaginateStrategies = map[string]bool{
	"pk_offset":        true,
	"numeric_offset":   true,
	"timestamp_offset": true,
}

// Pipeline engine config keys with viper-registered defaults (as
// opposed to the validated-enum keys above, read ad hoc with a
// warn-and-fallback instead of a viper default).
const (
	KeyEngineBatchSize   = "engine.batch_size"
	KeyEngineInferSchema = "engine.infer_schema"
)

// RegisterPipelineDefaults registers default values for the pipeline
// engine's ambient settings. Called from Initialize() in config.go.
func RegisterPipelineDefaults() {
	if v == nil {
		return
	}
	v.SetDefault(KeyEngineBatchSize, 500)
	v.SetDefault(KeyEngineInferSchema, true)
}

// GetDefaultBatchSize returns the ambient default row batch size
// applied when a pipeline entry's paginate.batch_size and
// settings.batch_size are both zero.
func GetDefaultBatchSize() int {
	return GetInt(KeyEngineBatchSize)
}

// GetDefaultInferSchema returns the ambient default for settings.infer_schema.
func GetDefaultInferSchema() bool {
	return GetBool(KeyEngineInferSchema)
}

// GetDefaultCopyColumns retrieves the ambient default copy_columns
// policy applied to a pipeline that doesn't declare its own.
// Returns the configured policy, or plan.CopyColumnsMapOnly (default)
// if not set or invalid. Logs a warning to stderr on an invalid value.
//
// Config key: engine.copy_columns
// Valid values: all, map_only
func GetDefaultCopyColumns() plan.CopyColumnsPolicy {
	value := GetString("engine.copy_columns")
	if value == "" {
		return plan.CopyColumnsMapOnly
	}

	policy := plan.CopyColumnsPolicy(strings.ToLower(strings.TrimSpace(value)))
	if !validCopyColumnsPolicies[policy] {
		fmt.Fprintf(os.Stderr, "Warning: invalid engine.copy_columns %q in config (valid: all, map_only), using default 'map_only'\n", value)
		return plan.CopyColumnsMapOnly
	}

	return policy
}

// GetDefaultValidationAction retrieves the ambient default action taken
// on a failing validation rule that doesn't specify its own.
// Returns the configured action, or plan.ActionFail (default) if not
// set or invalid. Logs a warning to stderr on an invalid value.
//
// Config key: engine.validation_action
// Valid values: skip, fail, warn, continue
func GetDefaultValidationAction() plan.ValidationAction {
	value := GetString("engine.validation_action")
	if value == "" {
		return plan.ActionFail
	}

	action := plan.ValidationAction(strings.ToLower(strings.TrimSpace(value)))
	if !validValidationActions[action] {
		fmt.Fprintf(os.Stderr, "Warning: invalid engine.validation_action %q in config (valid: skip, fail, warn, continue), using default 'fail'\n", value)
		return plan.ActionFail
	}

	return action
}

// GetDefaultPaginateStrategy retrieves the ambient default pagination
// strategy applied when a pipeline entry omits paginate.strategy.
// Returns the configured strategy, or "pk_offset" (default) if not set
// or invalid. Logs a warning to stderr on an invalid value.
//
// Config key: engine.paginate_strategy
// Valid values: pk_offset, numeric_offset, timestamp_offset
func GetDefaultPaginateStrategy() string {
	value := GetString("engine.paginate_strategy")
	if value == "" {
		return "pk_offset"
	}

	strategy := strings.ToLower(strings.TrimSpace(value))
	if !validPaginateStrategies[strategy] {
		fmt.Fprintf(os.Stderr, "Warning: invalid engine.paginate_strategy %q in config (valid: pk_offset, numeric_offset, timestamp_offset), using default 'pk_offset'\n", value)
		return "pk_offset"
	}

	return strategy
}
