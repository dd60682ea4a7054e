package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/sessions"
)

func newSessionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and prune thread sessions",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to config file")

	cmd.AddCommand(newSessionsStatsCmd(&configPath))
	cmd.AddCommand(newSessionsCleanupCmd(&configPath))
	return cmd
}

func openStore(configPath string) (*sessions.Store, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, nil, err
	}
	store, err := sessions.NewStore(gormDB)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newSessionsStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show session counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(*configPath)
			if err != nil {
				return err
			}
			stats, err := store.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total sessions:   %d\n", stats.Total)
			fmt.Fprintf(out, "active last hour: %d\n", stats.ActiveLastHour)
			if stats.OldestCreated != nil {
				fmt.Fprintf(out, "oldest created:   %s\n", stats.OldestCreated.Format(time.RFC3339))
			}
			if stats.NewestActivity != nil {
				fmt.Fprintf(out, "newest activity:  %s\n", stats.NewestActivity.Format(time.RFC3339))
			}
			for flow, n := range stats.PerFlow {
				fmt.Fprintf(out, "  flow %s: %d\n", flow, n)
			}
			return nil
		},
	}
}

func newSessionsCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions idle past the configured TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(*configPath)
			if err != nil {
				return err
			}
			ttl := time.Duration(cfg.Sessions.TTLHours) * time.Hour
			removed, err := store.Cleanup(ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d session(s)\n", removed)
			return nil
		},
	}
}
