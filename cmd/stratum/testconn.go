package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stanstork/stratum/internal/adapter/csv"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Verify a connection string resolves and authenticates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sourceFormat == "csv" {
			src, err := csv.Open(sourceConnStr)
			if err != nil {
				return err
			}
			src.Close()
			fmt.Println("ok")
			return nil
		}

		a, err := connectSQL(rootCtx, sourceFormat, sourceConnStr)
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Printf("ok (%s)\n", a.Dialect())
		return nil
	},
}

func init() {
	testConnCmd.Flags().StringVar(&sourceConnStr, "conn-str", "", "connection string (url/dsn/path depending on --format)")
	testConnCmd.Flags().StringVar(&sourceFormat, "format", "", "postgres, mysql, or csv")
	testConnCmd.MarkFlagRequired("conn-str")
	testConnCmd.MarkFlagRequired("format")
}
