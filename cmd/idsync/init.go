// Init command for the idsync CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/idsync/internal/dataset"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the local store and default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildRunConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg, dataset.Default())
		if err != nil {
			return err
		}
		defer st.Close()

		fmt.Printf("initialized store in %s\n", cfg.DataDir)
		return nil
	},
}
