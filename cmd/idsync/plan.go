// Plan command: run the reconciliation and write the plan artifact.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/idsync/internal/artifact"
	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/recon"
	"github.com/mesh-intelligence/idsync/internal/source"
)

var (
	flagPlanOut        string
	flagReportOut      string
	flagAllowPartial   bool
	flagIncludeSkipped bool
	flagIncludeDeleted bool
)

var planCmd = &cobra.Command{
	Use:   "plan <source.csv>",
	Short: "Reconcile a source export and write the plan",
	Long: `Plan reads the export, matches every row against the cache, resolves
link references, and writes the decided operations to the plan artifact.
Nothing is sent to the target; review the plan and run apply.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildRunConfig()
		if err != nil {
			return err
		}
		if flagAllowPartial {
			cfg.Pending.AllowPartial = true
		}
		if flagIncludeSkipped {
			cfg.IncludeSkipped = true
		}
		if flagIncludeDeleted {
			cfg.IncludeDeleted = true
		}

		reg := dataset.Default()
		ds, err := reg.Get(cfg.Dataset)
		if err != nil {
			return err
		}
		records, err := source.ReadCSV(args[0], ds.RowIDColumns()...)
		if err != nil {
			return err
		}

		st, err := openStore(cfg, reg)
		if err != nil {
			return err
		}
		defer st.Close()

		runner := recon.NewRunner(st, reg, cfg, log)
		res, err := runner.Plan(records, args[0])
		if err != nil {
			return err
		}

		if err := artifact.WritePlan(flagPlanOut, res.Plan); err != nil {
			return err
		}
		if err := artifact.WriteReport(flagReportOut, res.Report); err != nil {
			return err
		}

		if flagJSON {
			if err := printJSON(res.Plan.Summary); err != nil {
				return err
			}
		} else {
			s := res.Plan.Summary
			fmt.Printf("plan %s: %d rows, %d create, %d update, %d skip, %d pending, %d failed\n",
				res.Plan.Meta.RunID, s.RowsTotal, s.PlannedCreate, s.PlannedUpdate, s.Skipped, s.PendingRows, s.FailedRows)
			fmt.Printf("plan written to %s, report to %s\n", flagPlanOut, flagReportOut)
		}
		if res.Plan.Summary.FailedRows > 0 {
			return errRowFailures
		}
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&flagPlanOut, "plan-out", "plan.json", "plan artifact path")
	planCmd.Flags().StringVar(&flagReportOut, "report-out", "report.json", "row-level report path")
	planCmd.Flags().BoolVar(&flagAllowPartial, "allow-partial", false, "plan rows even when a link stays unresolved")
	planCmd.Flags().BoolVar(&flagIncludeSkipped, "include-skipped", false, "include unchanged rows as plan items")
	planCmd.Flags().BoolVar(&flagIncludeDeleted, "include-deleted", false, "match against soft-deleted cache rows")
}
