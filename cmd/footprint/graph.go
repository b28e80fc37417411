package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"footprint/internal/codec"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		format string
		output string
		input  string
		types  []string
	)

	cmd := &cobra.Command{
		Use:   "graph [SCAN_ID]",
		Short: "Export the entity graph of a scan",
		Long: `Export the entity graph of a stored scan. Only entities are kept; data
events between them are folded away.

With --input the graph is read from a saved YAML export instead, which
re-renders it in another format without the database.`,
		Example: `  footprint graph 3f1c... -f gexf -o example.gexf
  footprint graph --input saved.yaml -f json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if input != "" {
				return rerender(cmd, input, format, output)
			}
			if len(args) != 1 {
				return fmt.Errorf("a scan id or --input is required")
			}

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if output == "" {
				output = "-"
			}
			return writeGraph(cmd, e.svc, args[0], format, types, output)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: "+strings.Join(codec.Formats(), ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "read a saved YAML graph instead of a stored scan")
	cmd.Flags().StringSliceVarP(&types, "types", "t", nil, "entity types to keep (default: all)")
	return cmd
}

// rerender converts a saved YAML graph into format
func rerender(cmd *cobra.Command, input, format, output string) error {
	exp, err := codec.Lookup(format)
	if err != nil {
		return err
	}

	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()

	g, err := codec.NewYAMLCodec().Parse(in)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	if output == "" || output == "-" {
		return exp.Export(g, cmd.OutOrStdout())
	}
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := exp.Export(g, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
