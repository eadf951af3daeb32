package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// astCmd pretty-prints the parsed execution plan. The DSL grammar that
// would normally produce this structure from source text is out of
// scope (spec.md §1); --config already takes the compiled plan, so this
// command just re-renders it for inspection.
var astCmd = &cobra.Command{
	Use:     "ast",
	Short:   "Print the parsed execution plan",
	GroupID: GroupPlan,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan(configPath)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}
