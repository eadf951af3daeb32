package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/report"
)

var validateOutput string

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Dry-run an execution plan and print the report from spec.md §6",
	GroupID: GroupPlan,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPlan(configPath)
		if err != nil {
			return err
		}

		k, closeKernel, err := buildKernel()
		if err != nil {
			return err
		}
		defer closeKernel()

		summaries, err := k.Run(rootCtx, p, true)
		if err != nil {
			return err
		}

		hash, err := p.Hash()
		if err != nil {
			return err
		}
		runID := plan.RunID(hash)
		configHash := fmt.Sprintf("%x", hash[:8])

		reports := make([]*report.Report, 0, len(p.Pipelines))
		for i := range p.Pipelines {
			pl := &p.Pipelines[i]
			sr := summaries[pl.Name]

			r := report.Build(runID, configHash, Version, pl, nil, nil, nil)
			if sr != nil {
				for _, a := range sr.SchemaActions {
					r.Schema.Actions = append(r.Schema.Actions, report.SchemaActionView{Kind: a.Kind, Target: a.Target})
				}
				for _, s := range sr.Statements {
					r.GeneratedSQL.Statements = append(r.GeneratedSQL.Statements, report.SqlStatementView{
						Dialect: string(s.Dialect), Kind: s.Kind, SQL: s.SQL, Params: s.Params,
					})
				}
				if sr.Err != nil {
					r.Summary.Status = "failed"
					r.Summary.Errors = append(r.Summary.Errors, report.Finding{
						Code: "item.failed", Message: sr.Err.Error(), Severity: report.SeverityError, Kind: "validation",
					})
				}
			}
			reports = append(reports, r)
		}

		return writeReports(reports)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateOutput, "output", "", "write the JSON report to this file instead of stdout")
}

func writeReports(reports []*report.Report) error {
	if validateOutput == "" && !jsonOutput && term.IsTerminal(int(os.Stdout.Fd())) {
		for _, r := range reports {
			fmt.Print(renderReport(r))
		}
		return nil
	}

	var data []byte
	for i, r := range reports {
		chunk, err := report.MarshalIndent(r)
		if err != nil {
			return err
		}
		if i > 0 {
			data = append(data, '\n')
		}
		data = append(data, chunk...)
	}
	data = append(data, '\n')

	if validateOutput != "" {
		return os.WriteFile(validateOutput, data, 0644)
	}
	_, err := os.Stdout.Write(data)
	return err
}

// renderReport formats a dry-run report for an interactive terminal.
// The machine-readable form (report.MarshalIndent) stays the default
// whenever stdout isn't a TTY or --json/--output is given.
func renderReport(r *report.Report) string {
	statusStyle := okStyle
	if r.Summary.Status != "ok" {
		statusStyle = failStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s -> %s  [%s]\n",
		boldStyle.Render(r.RunID), r.Summary.Source, r.Summary.Destination, statusStyle.Render(r.Summary.Status))
	fmt.Fprintf(&b, "%s\n", dimStyle.Render(fmt.Sprintf("schema actions: %d, sql statements: %d, rows sampled: %d (ok %d, failed %d)",
		len(r.Schema.Actions), len(r.GeneratedSQL.Statements), r.Summary.RecordsSampled, r.Transform.OK, r.Transform.Failed)))
	for _, f := range r.Summary.Errors {
		fmt.Fprintf(&b, "  %s %s\n", failStyle.Render(f.Code+":"), f.Message)
	}
	return b.String()
}
