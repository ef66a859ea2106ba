// Apply command: execute a reviewed plan against the target.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/idsync/internal/artifact"
	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/target"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

var flagSecretsFile string

var applyCmd = &cobra.Command{
	Use:   "apply <plan.json>",
	Short: "Apply a plan to the target identity system",
	Long: `Apply executes every create and update in the plan artifact. Secrets
are fetched from the configured providers at the moment a create needs
them; masked values in the artifact are never sent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildRunConfig()
		if err != nil {
			return err
		}
		if cfg.Apply.BaseURL == "" {
			return fmt.Errorf("no target base_url configured; set apply.base_url")
		}

		plan, err := artifact.ReadPlan(args[0])
		if err != nil {
			return err
		}
		provider, err := secretProvider(flagSecretsFile)
		if err != nil {
			return err
		}

		reg := dataset.Default()
		st, err := openStore(cfg, reg)
		if err != nil {
			return err
		}
		defer st.Close()

		client := target.NewClient(cfg.Apply, log)
		applier := target.NewApplier(client, st, reg, provider, cfg.Apply, log)
		res, err := applier.Apply(cmd.Context(), plan)
		if err != nil {
			if types.IsRetryable(err) {
				log.Warn().Err(err).Msg("transient target failure, re-run apply to continue")
			}
			return err
		}

		if flagJSON {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			fmt.Printf("applied plan %s: %d created, %d updated, %d failed\n",
				plan.Meta.RunID, res.Created, res.Updated, res.Failed)
		}
		if res.Failed > 0 {
			return errRowFailures
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&flagSecretsFile, "secrets-file", "", "JSON secret file (default: config secrets.file)")
}
