// Cache commands: status and clear.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/internal/target"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache row counts and last refresh time",
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

		se, err := st.Read()
		if err != nil {
			return err
		}

		type status struct {
			Dataset     string `json:"dataset"`
			Rows        int    `json:"rows"`
			LastRefresh string `json:"last_refresh,omitempty"`
		}
		var out []status
		for _, name := range reg.Names() {
			n, err := se.Cache().Count(name)
			if err != nil {
				return err
			}
			last, err := se.Cache().GetMeta(name, target.LastRefreshKey)
			if err != nil {
				return err
			}
			out = append(out, status{Dataset: name, Rows: n, LastRefresh: last})
		}

		if flagJSON {
			return printJSON(out)
		}
		for _, s := range out {
			last := s.LastRefresh
			if last == "" {
				last = "never"
			}
			fmt.Printf("%s: %d rows, last refresh %s\n", s.Dataset, s.Rows, last)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached row for the dataset",
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

		var removed int64
		err = st.WithTx(func(se *store.Session) error {
			n, err := se.Cache().Clear(cfg.Dataset)
			removed = n
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d rows from %s\n", removed, cfg.Dataset)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
