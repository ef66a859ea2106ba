// Refresh command: rebuild the cache store from the target directory.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/target"
)

var (
	flagSnapshot string
	flagPageSize int
	flagMaxPages int
	flagFull     bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the cache from the target directory",
	Long: `Refresh pages the target directory into the local cache and seeds the
identity index from every cached row. With --snapshot the pages come from a
JSON export file instead of the live API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildRunConfig()
		if err != nil {
			return err
		}
		reg := dataset.Default()
		st, err := openStore(cfg, reg)
		if err != nil {
			return err
		}
		defer st.Close()

		var pages target.Pager
		if flagSnapshot != "" {
			pages = target.SnapshotPager(flagSnapshot)
		} else {
			if cfg.Apply.BaseURL == "" {
				return fmt.Errorf("no target base_url configured; use --snapshot or set apply.base_url")
			}
			pages = target.NewClient(cfg.Apply, log).IterPages
		}

		refresher := target.NewRefresher(st, reg, log)
		res, err := refresher.Refresh(cmd.Context(), cfg.Dataset, pages, flagPageSize, flagMaxPages, flagFull)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(res)
		}
		fmt.Printf("refreshed %s: %d rows (%d new, %d updated), %d index entries\n",
			cfg.Dataset, res.Rows, res.Inserted, res.Updated, res.IndexEntries)
		return nil
	},
}

func init() {
	refreshCmd.Flags().StringVar(&flagSnapshot, "snapshot", "", "JSON export file to refresh from instead of the live API")
	refreshCmd.Flags().IntVar(&flagPageSize, "page-size", 500, "records per directory page")
	refreshCmd.Flags().IntVar(&flagMaxPages, "max-pages", 1000, "abort after this many pages (0 = unbounded)")
	refreshCmd.Flags().BoolVar(&flagFull, "full", false, "clear the cache before refreshing")
}
