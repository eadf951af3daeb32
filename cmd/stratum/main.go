// Command stratum runs the declarative migration engine: migrate applies
// an execution plan, validate dry-runs one and prints the report from
// spec.md §6, and the remaining subcommands inspect plans, connections,
// and in-flight progress.
//
// Grounded on the teacher's cmd/bd/main.go root-command structure
// (package-level flag vars, a PersistentPreRun that resolves flag vs.
// config precedence, a signal-aware root context); main's exit-code
// classification is new, since the teacher's main only ever exits 1.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/telemetry"
)

// Exit codes from spec.md §6: 0 success, 1 migration error, 2 shutdown
// requested, 3 config/settings error.
const (
	exitOK                = 0
	exitMigrationError    = 1
	exitShutdownRequested = 2
	exitConfigError       = 3
)

func main() {
	ctx := context.Background()
	if err := telemetry.Init(ctx, Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry disabled: %v\n", err)
	} else {
		defer telemetry.Shutdown(ctx)
	}

	os.Exit(exitCode(Execute()))
}

// exitCode classifies err per spec.md §6's exit code contract by
// inspecting the kernelerr taxonomy rather than string-matching.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, err)

	if kernelerr.IsShutdownRequested(err) {
		return exitShutdownRequested
	}

	var settingsErr *kernelerr.SettingsError
	if errors.As(err, &settingsErr) {
		return exitConfigError
	}

	var kErr *kernelerr.Error
	if errors.As(err, &kErr) && kErr.Kind == kernelerr.KindInitialization {
		return exitConfigError
	}

	return exitMigrationError
}
