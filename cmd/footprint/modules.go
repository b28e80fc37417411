package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModulesCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List the available modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENABLED\tUSE CASES\tSUMMARY")
			for _, info := range reg.List() {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", info.Name, info.Enabled, strings.Join(info.UseCases, ","), info.Summary)
				if !verbose {
					continue
				}
				fmt.Fprintf(tw, "\twatches\t%s\t\n", strings.Join(info.Watched, ", "))
				fmt.Fprintf(tw, "\tproduces\t%s\t\n", strings.Join(info.Produced, ", "))
				keys := make([]string, 0, len(info.Options))
				for k := range info.Options {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(tw, "\toption\t%s=%v\t\n", k, info.Options[k])
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show event types and options")
	return cmd
}
