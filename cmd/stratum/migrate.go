package main

import (
	"fmt"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/stanstork/stratum/internal/config"
	"github.com/stanstork/stratum/internal/eventbus"
	"github.com/stanstork/stratum/internal/kernel"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/statestore"
)

var fromAST bool

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply an execution plan, resuming any in-flight run",
	GroupID: GroupRuntime,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan(configPath)
		if err != nil {
			return err
		}
		if fromAST {
			fmt.Fprintln(os.Stderr, "note: --from-ast has no effect; the DSL compiler is out of scope, --config already takes the compiled plan")
		}

		k, closeKernel, err := buildKernel()
		if err != nil {
			return err
		}
		defer closeKernel()

		reports, err := k.Run(rootCtx, p, false)
		if err != nil {
			return err
		}

		failed := 0
		for name, r := range reports {
			if r.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "item %s: %v\n", name, r.Err)
			} else if jsonOutput {
				fmt.Printf("%s: run=%s item=%s ok\n", name, r.RunID, r.ItemID)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d items failed", failed, len(reports))
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&fromAST, "from-ast", false, "accepted for CLI-surface parity; the DSL compiler is out of scope")
}

// loadPlan reads and parses the execution plan JSON at path.
func loadPlan(path string) (*plan.ExecutionPlan, error) {
	if path == "" {
		return nil, kernelerr.Initialization("--config is required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kernelerr.Initialization("reading execution plan", err)
	}
	p, err := plan.ParsePlan(data)
	if err != nil {
		return nil, kernelerr.Initialization("parsing execution plan", err)
	}
	return p, nil
}

// buildKernel opens the state store and event bus per the runtime.*
// config keys, returning a cleanup func that closes both.
func buildKernel() (*kernel.Kernel, func(), error) {
	stateDir := os.ExpandEnv(config.GetString("runtime.state_dir"))
	store, err := statestore.Open(stateDir)
	if err != nil {
		return nil, nil, kernelerr.Initialization("opening state store", err)
	}

	bus := eventbus.New()
	var nc *nats.Conn
	if url := config.GetString("runtime.nats_url"); url != "" {
		nc, err = nats.Connect(url)
		if err != nil {
			store.Close()
			return nil, nil, kernelerr.Initialization("connecting to NATS", err)
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			store.Close()
			return nil, nil, kernelerr.Initialization("opening JetStream context", err)
		}
		bus.SetJetStream(js)
	}

	cleanup := func() {
		store.Close()
		if nc != nil {
			nc.Close()
		}
	}
	return kernel.New(store, bus), cleanup, nil
}
