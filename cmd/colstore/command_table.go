package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTableCmd(a *app) *cobra.Command {
	tableCmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables",
	}

	tableCmd.AddCommand(
		&cobra.Command{
			Use:   "create <table>",
			Short: "Create a table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.store.CreateTable(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "drop <table>",
			Short: "Drop a table and all its rows",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.store.DropTable(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				tables, err := a.store.ListTables(cmd.Context())
				if err != nil {
					return err
				}

				for _, t := range tables {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "exists <table>",
			Short: "Report whether a table exists",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ok, err := a.store.TableExists(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			},
		},
	)

	return tableCmd
}

func newFlushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Flush buffered writes to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.Flush(cmd.Context())
		},
	}
}
