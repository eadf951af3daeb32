package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stanstork/stratum/internal/config"
)

const (
	GroupPlan    = "plan"
	GroupRuntime = "runtime"
)

var (
	// rootCtx is cancelled on SIGINT/SIGTERM; every long-running command
	// (migrate, progress --watch) derives its context from it so a
	// shutdown request propagates as kernelerr.ShutdownRequested rather
	// than an abrupt process kill.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	configPath string
	jsonOutput bool
	verbose    bool
)

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupPlan, Title: "Plan inspection:"},
		&cobra.Group{ID: GroupRuntime, Title: "Runtime:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the execution plan JSON")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log flag overrides and config sources")

	rootCmd.AddCommand(migrateCmd, validateCmd, sourceCmd, astCmd, testConnCmd, progressCmd)
}

var rootCmd = &cobra.Command{
	Use:     "stratum",
	Short:   "stratum - declarative, resumable data migration engine",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		flagOverrides := map[string]config.FlagOverride{
			"config": {Value: configPath, WasSet: cmd.Flags().Changed("config")},
			"json":   {Value: jsonOutput, WasSet: cmd.Flags().Changed("json")},
		}
		if verbose {
			for _, o := range config.CheckOverrides(flagOverrides) {
				fmt.Fprintf(os.Stderr, "note: --%s overrides config value\n", o.Key)
			}
		}
	},
}

// Execute runs the root command, returning whatever error a subcommand's
// RunE produced so main can classify it into an exit code.
func Execute() error {
	defer func() {
		if rootCancel != nil {
			rootCancel()
		}
	}()
	return rootCmd.Execute()
}
