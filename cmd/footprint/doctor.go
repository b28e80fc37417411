package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"footprint/internal/preflight"
)

func newDoctorCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		write  string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check this host and suggest module settings",
		Long: `doctor probes the host for nmap, privileges, container runtimes, DNS
and cache access, then suggests which modules to enable and which scan
posture suits it. Use --write to save the suggestion as a config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := preflight.Run(cmd.Context(), preflight.OSHost(), a.cfg.Cache.Dir, a.logger)
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tPROPERTY\tVALUE\tCONFIDENCE\tMETHOD")
			for _, e := range report.Evidence {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", e.Category, e.Property, oneLine(e.String()), e.Confidence, e.Method)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			rec := report.Recommendation
			fmt.Fprintln(out)
			for _, r := range rec.Reasons {
				fmt.Fprintln(out, "  -", r)
			}
			for _, w := range rec.Warnings {
				fmt.Fprintln(out, "  ! warning:", w)
			}

			overlay := struct {
				Scan    map[string]any `yaml:"scan"`
				Modules any            `yaml:"modules"`
			}{
				Scan:    map[string]any{"posture": rec.Posture},
				Modules: rec.Modules,
			}
			data, err := yaml.Marshal(overlay)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSuggested config:\n%s", data)

			if write == "" {
				return nil
			}
			if _, err := os.Stat(write); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", write)
			}
			if err := rec.Config().Save(write); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Wrote %s\n", write)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	cmd.Flags().StringVarP(&write, "write", "w", "", "save the suggested settings as a config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file with --write")
	return cmd
}
