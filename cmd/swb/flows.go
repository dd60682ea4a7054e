package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/flows"
)

func newFlowsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Manage the flow catalog",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to config file")

	cmd.AddCommand(newFlowsListCmd(&configPath))
	cmd.AddCommand(newFlowsAddCmd(&configPath))
	cmd.AddCommand(newFlowsRemoveCmd(&configPath))
	cmd.AddCommand(newFlowsDefaultCmd(&configPath))
	return cmd
}

// openRegistry loads config, connects, migrates, and builds a Registry.
func openRegistry(configPath string) (*flows.Registry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return flows.NewRegistry(gormDB)
}

func newFlowsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry(*configPath)
			if err != nil {
				return err
			}
			list, err := registry.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no flows configured")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDEFAULT\tENDPOINT\tDESCRIPTION")
			for _, f := range list {
				def := ""
				if f.IsDefault {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Name, def, f.Endpoint(), f.Description)
			}
			return w.Flush()
		},
	}
}

func newFlowsAddCmd(configPath *string) *cobra.Command {
	var apiKey, description string
	var setDefault bool

	cmd := &cobra.Command{
		Use:   "add <name> <url> <flow-id>",
		Short: "Register a flow",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry(*configPath)
			if err != nil {
				return err
			}
			created, err := registry.Add(args[0], args[1], args[2], apiKey, description, setDefault)
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("flow %q already exists", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added flow %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Langflow API key")
	cmd.Flags().StringVar(&description, "description", "", "flow description")
	cmd.Flags().BoolVar(&setDefault, "default", false, "make this the default flow")
	return cmd
}

func newFlowsRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a flow and its channel bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry(*configPath)
			if err != nil {
				return err
			}
			removed, err := registry.Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no flow named %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed flow %q\n", args[0])
			return nil
		},
	}
}

func newFlowsDefaultCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "default <name>",
		Short: "Set the default flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry(*configPath)
			if err != nil {
				return err
			}
			ok, err := registry.SetDefault(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no flow named %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "default flow is now %q\n", args[0])
			return nil
		},
	}
}
