package config

import (
	"testing"
	"time"

	"github.com/stanstork/stratum/internal/plan"
)

func TestRetryDefaults(t *testing.T) {
	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if got := GetRetryMaxAttempts(); got != 3 {
		t.Errorf("GetRetryMaxAttempts() = %d, want 3", got)
	}
	if got := GetRetryBackoffKind(); got != plan.BackoffExponential {
		t.Errorf("GetRetryBackoffKind() = %q, want %q", got, plan.BackoffExponential)
	}
	if got := GetDuration(KeyRetryBackoffBase); got != 500*time.Millisecond {
		t.Errorf("GetDuration(%s) = %v, want 500ms", KeyRetryBackoffBase, got)
	}
	if got := GetDuration(KeyRetryBackoffMax); got != 30*time.Second {
		t.Errorf("GetDuration(%s) = %v, want 30s", KeyRetryBackoffMax, got)
	}
}

func TestGetRetrySettings(t *testing.T) {
	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	settings := GetRetrySettings()
	if settings.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", settings.MaxAttempts)
	}
	if settings.Backoff.Kind != plan.BackoffExponential {
		t.Errorf("Backoff.Kind = %q, want %q", settings.Backoff.Kind, plan.BackoffExponential)
	}
	if settings.DLQTable != "" {
		t.Errorf("DLQTable = %q, want empty", settings.DLQTable)
	}
}

func TestDefaultErrorHandling(t *testing.T) {
	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	eh := DefaultErrorHandling()
	if eh.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", eh.MaxAttempts)
	}
	if eh.Backoff != plan.BackoffExponential {
		t.Errorf("Backoff = %q, want %q", eh.Backoff, plan.BackoffExponential)
	}
}

func TestRetryConfigKeys(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{KeyRetryMaxAttempts, "retry.max-attempts"},
		{KeyRetryBackoffKind, "retry.backoff.kind"},
		{KeyRetryBackoffBase, "retry.backoff.base"},
		{KeyRetryBackoffMax, "retry.backoff.max"},
		{KeyRetryDLQTable, "retry.dlq.table"},
		{KeyRetryDLQFile, "retry.dlq.file"},
	}

	for _, tt := range tests {
		if tt.key != tt.want {
			t.Errorf("Key %q != expected %q", tt.key, tt.want)
		}
	}
}

func TestRetrySettingsOverride(t *testing.T) {
	ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	Set(KeyRetryMaxAttempts, 10)
	Set(KeyRetryBackoffKind, string(plan.BackoffFixed))

	if got := GetRetryMaxAttempts(); got != 10 {
		t.Errorf("GetRetryMaxAttempts() after override = %d, want 10", got)
	}
	if got := GetRetryBackoffKind(); got != plan.BackoffFixed {
		t.Errorf("GetRetryBackoffKind() after override = %q, want %q", got, plan.BackoffFixed)
	}
}
