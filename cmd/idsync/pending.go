// Pending commands: list, sweep, and purge the deferred-link queue.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

var (
	flagPendingStatus string
	flagPendingLimit  int
	flagPurgeDays     int
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and manage deferred link references",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued link references",
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

		se, err := st.Read()
		if err != nil {
			return err
		}
		links, err := se.Pending().List(cfg.Dataset, flagPendingStatus, flagPendingLimit)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(links)
		}
		if len(links) == 0 {
			fmt.Println("no pending links")
			return nil
		}
		for _, link := range links {
			fmt.Printf("%d  %s  row=%s  field=%s  key=%s  attempts=%d  %s\n",
				link.PendingID, link.Status, link.SourceRowID, link.Field,
				link.LookupKey, link.Attempts, link.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var pendingSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pending links whose TTL has passed",
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

		var expired []types.PendingLink
		err = st.WithTx(func(se *store.Session) error {
			var err error
			expired, err = se.Pending().SweepExpired(time.Now(), "ttl expired")
			return err
		})
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(expired)
		}
		fmt.Printf("expired %d pending links\n", len(expired))
		return nil
	},
}

var pendingPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete resolved, expired, and conflicted entries past retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildRunConfig()
		if err != nil {
			return err
		}
		days := flagPurgeDays
		if days <= 0 {
			days = cfg.Pending.RetentionDays
		}
		st, err := openStore(cfg, dataset.Default())
		if err != nil {
			return err
		}
		defer st.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		var purged int64
		err = st.WithTx(func(se *store.Session) error {
			var err error
			purged, err = se.Pending().PurgeStale(cutoff, nil)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("purged %d entries older than %d days\n", purged, days)
		return nil
	},
}

func init() {
	pendingListCmd.Flags().StringVar(&flagPendingStatus, "status", "", "filter by status (pending, resolved, conflict, expired)")
	pendingListCmd.Flags().IntVar(&flagPendingLimit, "limit", 50, "maximum entries to list (0 = all)")
	pendingPurgeCmd.Flags().IntVar(&flagPurgeDays, "days", 0, "retention in days (default: config pending.retention_days)")

	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingSweepCmd)
	pendingCmd.AddCommand(pendingPurgeCmd)
}
