package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// TestMain isolates tests from the developer machine's own config.
//
// Tests assert compiled-in defaults (e.g. engine.copy_columns=map_only).
// If the test process runs from a directory with its own config.yaml, or
// $HOME has a .stratum/config.yaml, Initialize() would pick those up
// instead.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "stratum-config-tests-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	oldWD, _ := os.Getwd()

	// Point config discovery away from the repo and user's machine.
	_ = os.Chdir(tmp)
	_ = os.Setenv("HOME", tmp)
	_ = os.Setenv("USERPROFILE", tmp) // Windows compatibility
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg-config"))

	code := m.Run()

	_ = os.Chdir(oldWD)
	_ = os.RemoveAll(tmp)
	os.Exit(code)
}
