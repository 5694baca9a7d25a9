package main

import (
	"fmt"
	"io"
	"os"

	"github.com/likearthian/colstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func printCell(w io.Writer, c colstore.Cell, withRow bool) {
	if withRow {
		fmt.Fprintf(w, "%s\t", colstore.FormatBytes(c.Row))
	}
	fmt.Fprintf(w, "%s:%s\t@%d\t%s\n", c.Family, c.Qualifier, c.Timestamp, colstore.FormatBytes(c.Value))
}

// cellFilter turns the --family and --qualifier flags into read options.
func cellFilter(cmd *cobra.Command) ([]colstore.ReadOption, error) {
	family, _ := cmd.Flags().GetString("family")
	qualifier, _ := cmd.Flags().GetString("qualifier")

	switch {
	case qualifier != "" && family == "":
		return nil, errors.New("--qualifier needs --family")
	case qualifier != "":
		return []colstore.ReadOption{colstore.WithQualifier(family, qualifier)}, nil
	case family != "":
		return []colstore.ReadOption{colstore.WithFamily(family)}, nil
	}
	return nil, nil
}

func addCellFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("family", "", "restrict to one column family")
	cmd.Flags().String("qualifier", "", "restrict to one column, needs --family")
}

func newPutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <table> <row> <family:qualifier> <value>",
		Short: "Write one cell",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := colstore.ParseBytes(args[1])
			if err != nil {
				return err
			}

			family, qualifier, err := colstore.ParseColumn(args[2])
			if err != nil {
				return err
			}

			value, err := colstore.ParseBytes(args[3])
			if err != nil {
				return err
			}

			ts, _ := cmd.Flags().GetInt64("timestamp")
			return a.store.Put(cmd.Context(), args[0], colstore.Mutation{
				Row:       row,
				Columns:   []colstore.Column{{Family: family, Qualifier: qualifier, Value: value}},
				Timestamp: ts,
			})
		},
	}

	cmd.Flags().Int64("timestamp", 0, "cell timestamp in milliseconds, defaults to now")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <table> <row>",
		Short: "Print the cells of one row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := colstore.ParseBytes(args[1])
			if err != nil {
				return err
			}

			opts, err := cellFilter(cmd)
			if err != nil {
				return err
			}

			cells, err := a.store.Get(cmd.Context(), args[0], row, opts...)
			if err != nil {
				return err
			}

			if len(cells) == 0 {
				return errors.Wrapf(colstore.ErrRowNotFound, "%s", args[1])
			}

			for _, c := range cells {
				printCell(cmd.OutOrStdout(), c, false)
			}
			return nil
		},
	}

	addCellFilterFlags(cmd)
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <table>",
		Short: "Print the rows of a table in row key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := cellFilter(cmd)
			if err != nil {
				return err
			}

			if start, _ := cmd.Flags().GetString("start"); start != "" {
				b, err := colstore.ParseBytes(start)
				if err != nil {
					return err
				}
				opts = append(opts, colstore.WithStartRow(b))
			}

			if stop, _ := cmd.Flags().GetString("stop"); stop != "" {
				b, err := colstore.ParseBytes(stop)
				if err != nil {
					return err
				}
				opts = append(opts, colstore.WithStopRow(b))
			}

			if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
				opts = append(opts, colstore.WithLimit(limit))
			}

			rows, err := a.store.Scan(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}

			for _, r := range rows {
				for _, c := range r.Cells {
					printCell(cmd.OutOrStdout(), c, true)
				}
			}
			return nil
		},
	}

	addCellFilterFlags(cmd)
	cmd.Flags().String("start", "", "first row key, inclusive")
	cmd.Flags().String("stop", "", "last row key, exclusive")
	cmd.Flags().Int("limit", 0, "maximum number of rows")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <table> <row>",
		Short: "Delete a row, a family of a row or one cell",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := colstore.ParseBytes(args[1])
			if err != nil {
				return err
			}

			opts, err := cellFilter(cmd)
			if err != nil {
				return err
			}

			return a.store.Delete(cmd.Context(), args[0], row, opts...)
		},
	}

	addCellFilterFlags(cmd)
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <table> <file.csv>",
		Short: "Write the cells of a CSV file of row,family:qualifier,value[,timestamp] records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			header, _ := cmd.Flags().GetBool("header")
			n, err := colstore.LoadCSV(cmd.Context(), a.store, args[0], f, header)
			if err != nil {
				return errors.Wrapf(err, "imported %d cells before failing", n)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d cells\n", n)
			return nil
		},
	}

	cmd.Flags().Bool("header", false, "skip and check a row,column,value[,timestamp] header line")
	return cmd
}
