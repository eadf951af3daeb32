package config

import (
	"time"

	"github.com/stanstork/stratum/internal/plan"
)

// Retry config keys (spec.md §4.9 retry classifier / error handling).
const (
	KeyRetryMaxAttempts = "retry.max-attempts"
	KeyRetryBackoffKind = "retry.backoff.kind"
	KeyRetryBackoffBase = "retry.backoff.base"
	KeyRetryBackoffMax  = "retry.backoff.max"

	KeyRetryDLQTable = "retry.dlq.table"
	KeyRetryDLQFile  = "retry.dlq.file"
)

// RetrySettings is the ambient default error-handling policy, applied to
// any pipeline that doesn't declare its own in the execution plan.
type RetrySettings struct {
	MaxAttempts int             `json:"max_attempts" yaml:"max-attempts"`
	Backoff     BackoffSettings `json:"backoff" yaml:"backoff"`
	DLQTable    string          `json:"dlq_table,omitempty" yaml:"dlq-table,omitempty"`
	DLQFile     string          `json:"dlq_file,omitempty" yaml:"dlq-file,omitempty"`
}

// BackoffSettings parameterizes the retry classifier's backoff schedule.
type BackoffSettings struct {
	Kind plan.BackoffKind `json:"kind" yaml:"kind"`
	Base time.Duration    `json:"base" yaml:"base"`
	Max  time.Duration    `json:"max" yaml:"max"`
}

// RegisterRetryDefaults registers default values for the retry/backoff
// policy. Called from Initialize() in config.go.
func RegisterRetryDefaults() {
	if v == nil {
		return
	}

	v.SetDefault(KeyRetryMaxAttempts, 3)
	v.SetDefault(KeyRetryBackoffKind, string(plan.BackoffExponential))
	v.SetDefault(KeyRetryBackoffBase, "500ms")
	v.SetDefault(KeyRetryBackoffMax, "30s")
	v.SetDefault(KeyRetryDLQTable, "")
	v.SetDefault(KeyRetryDLQFile, "")
}

// GetRetrySettings returns the current ambient retry policy.
func GetRetrySettings() RetrySettings {
	return RetrySettings{
		MaxAttempts: GetInt(KeyRetryMaxAttempts),
		Backoff: BackoffSettings{
			Kind: plan.BackoffKind(GetString(KeyRetryBackoffKind)),
			Base: GetDuration(KeyRetryBackoffBase),
			Max:  GetDuration(KeyRetryBackoffMax),
		},
		DLQTable: GetString(KeyRetryDLQTable),
		DLQFile:  GetString(KeyRetryDLQFile),
	}
}

// GetRetryMaxAttempts returns the ambient default max attempts.
func GetRetryMaxAttempts() int {
	return GetInt(KeyRetryMaxAttempts)
}

// GetRetryBackoffKind returns the ambient default backoff kind.
func GetRetryBackoffKind() plan.BackoffKind {
	return plan.BackoffKind(GetString(KeyRetryBackoffKind))
}

// DefaultErrorHandling builds a plan.ErrorHandling from the ambient
// defaults, used when a pipeline entry omits its own error_handling
// block.
func DefaultErrorHandling() plan.ErrorHandling {
	s := GetRetrySettings()
	return plan.ErrorHandling{
		MaxAttempts: s.MaxAttempts,
		Backoff:     s.Backoff.Kind,
		DLQTable:    s.DLQTable,
		DLQFile:     s.DLQFile,
	}
}
