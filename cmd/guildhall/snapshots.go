// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package main

import (
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildhall/guildhall/internal/config"
	"github.com/guildhall/guildhall/internal/persistence"
)

// NewSnapshotsCmd creates the snapshots subcommand.
func NewSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List stored state snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return listSnapshots(cmd, cfg)
		},
	}

	addConfigFlags(cmd)
	return cmd
}

func listSnapshots(cmd *cobra.Command, cfg config.Config) error {
	store, err := persistence.Open(persistence.StoreConfig{
		Dir:  cfg.Persistence.Dir,
		Keep: cfg.Persistence.Keep,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println("no snapshots stored")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if _, err := tw.Write([]byte("ID\tVERSION\tTICK\tCREATED\tCHECKSUM\n")); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tw.Write([]byte(
			e.ID + "\t" +
				formatUint(e.Version) + "\t" +
				formatUint(e.Tick) + "\t" +
				e.CreatedAt.Format(time.RFC3339) + "\t" +
				shortChecksum(e.Checksum) + "\n")); err != nil {
			return err
		}
	}
	return nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// shortChecksum abbreviates a catalog checksum for display. Rows written
// by older builds may carry short or empty checksums.
func shortChecksum(sum string) string {
	if len(sum) <= 12 {
		return sum
	}
	return sum[:12]
}
