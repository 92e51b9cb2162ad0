package main

import (
	"fmt"
	"io"
	"os"

	"github.com/localnerve/lite/internal/query"
	"github.com/spf13/cobra"
)

func newExportCmd(e *env) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <case-id> [category]",
		Short: "Export one category as CSV or JSON, or the whole case as JSON",
		Long: "Without a category the whole case is written as one JSON document keyed by\n" +
			"category, which `litectl ingest` accepts back.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			if format, err = query.ParseFormat(format); err != nil {
				return err
			}
			if len(args) == 1 && format != query.FormatJSON {
				return fmt.Errorf("a whole case exports as json only")
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if len(args) == 1 {
				err = query.ExportCase(cmd.Context(), e.db, c, w)
			} else {
				err = query.Export(cmd.Context(), e.db, c, args[1], format, w)
			}
			if err != nil {
				if output != "" && output != "-" {
					os.Remove(output)
				}
				return err
			}
			if output != "" && output != "-" {
				success(cmd.ErrOrStderr(), "Wrote %s", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
