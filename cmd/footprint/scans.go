package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"footprint/internal/repository"
)

func newScansCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scans",
		Short: "List stored scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.Close()

			scans, err := e.svc.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTARGET\tSTATUS\tEVENTS\tSTARTED")
			for _, s := range scans {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					s.ID, s.Name, s.Target, s.Status, s.Events, s.Started.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(newDeleteCmd(a))
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SCAN_ID...",
		Short: "Delete scans and their events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.Close()

			for _, id := range args {
				if err := e.svc.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}

func newEventsCmd(a *app) *cobra.Command {
	var (
		types []string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events SCAN_ID",
		Short: "Show the events a scan produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.Close()

			events, err := e.svc.Events(cmd.Context(), args[0], repository.EventFilter{Types: types, Limit: limit})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tDATA\tMODULE\tSOURCE")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.Type, oneLine(ev.Data), ev.Module, oneLine(ev.SourceData))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVarP(&types, "types", "t", nil, "event types to show (default: all)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of events (0: no limit)")
	return cmd
}

// oneLine keeps multi-line event data on one table row
func oneLine(s string) string {
	const width = 80
	for i, r := range s {
		if r == '\n' || r == '\r' {
			s = s[:i] + " ..."
			break
		}
	}
	if len(s) > width {
		s = s[:width] + "..."
	}
	return s
}
