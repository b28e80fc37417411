package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"footprint/internal/codec"
	"footprint/internal/config"
	"footprint/internal/module"
	"footprint/internal/service"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		name    string
		modules []string
		useCase string
		sets    []string
		format  string
		output  string
		types   []string
	)

	cmd := &cobra.Command{
		Use:   "scan TARGET",
		Short: "Run a scan and wait for it to finish",
		Long: `Run a scan against TARGET and wait until no module has work left.
Interrupting the command stops the scan; findings so far are kept.

Module options for this scan only are set with --set module:option=value.`,
		Example: `  footprint scan example.com
  footprint scan 192.0.2.0/24 --use-case passive
  footprint scan example.com -m dnsresolve,portscan --set portscan:mode=fast -o graph.gexf -f gexf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := codec.Lookup(format); err != nil {
				return err
			}

			e, err := a.open()
			if err != nil {
				return err
			}
			defer e.Close()

			opts, err := parseSets(sets, e.registry)
			if err != nil {
				return err
			}

			res, err := e.svc.Run(cmd.Context(), service.ScanRequest{
				Name:    name,
				Target:  args[0],
				Modules: modules,
				UseCase: useCase,
				Options: opts,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scan %s %s: %d events published, %d delivered, %d failures\n",
				res.Scan.ID, res.Scan.Status, res.Stats.Published, res.Stats.Delivered, res.Stats.Failures)
			if len(res.Pruned) > 0 {
				fmt.Fprintf(out, "Skipped modules the target cannot reach: %s\n", strings.Join(res.Pruned, ", "))
			}
			for _, st := range res.States {
				if st.Errored {
					fmt.Fprintf(out, "Module %s disabled: %s\n", st.Module, st.Reason)
				}
			}

			if output == "" {
				return nil
			}
			return writeGraph(cmd, e.svc, res.Scan.ID, format, types, output)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "scan name (default: the target)")
	cmd.Flags().StringSliceVarP(&modules, "modules", "m", nil, "modules to run (default: every enabled module for the use case)")
	cmd.Flags().StringVarP(&useCase, "use-case", "u", "", "use case: all, footprint, investigate, passive (default from config)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "module option override, module:option=value (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "graph format for --output: "+strings.Join(codec.Formats(), ", "))
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the entity graph to this file ('-' for stdout)")
	cmd.Flags().StringSliceVarP(&types, "types", "t", nil, "entity types to keep in the graph (default: all)")
	return cmd
}

// parseSets turns module:option=value flags into per-module options. Values
// take the type of the option's registered default when it has one.
func parseSets(sets []string, reg *module.Registry) (map[string]module.Options, error) {
	if len(sets) == 0 {
		return nil, nil
	}

	flat := make(map[string]string, len(sets))
	refs := make(map[string]map[string]any)
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		mod, opt, ok2 := strings.Cut(key, ":")
		if !ok || !ok2 || mod == "" || opt == "" {
			return nil, fmt.Errorf("invalid --set %q: want module:option=value", s)
		}
		_, cfg, found := reg.Get(mod)
		if !found {
			return nil, fmt.Errorf("%w: %s", service.ErrUnknownModule, mod)
		}
		flat[key] = value
		refs[mod] = cfg.Options
	}

	_, typed, err := config.Unserialize(flat, nil, refs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]module.Options, len(refs))
	for key, value := range flat {
		mod, opt, _ := strings.Cut(key, ":")
		if out[mod] == nil {
			out[mod] = module.Options{}
		}
		if v, ok := typed[mod][opt]; ok {
			out[mod][opt] = v
			continue
		}
		// no default to take the type from; module accessors parse strings
		out[mod][opt] = value
	}
	return out, nil
}

// writeGraph exports a stored scan's graph to path, or stdout for "-"
func writeGraph(cmd *cobra.Command, svc *service.ScanService, scanID, format string, types []string, path string) error {
	if path == "-" {
		return svc.Graph(cmd.Context(), scanID, format, types, cmd.OutOrStdout())
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := svc.Graph(cmd.Context(), scanID, format, types, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", path)
	return nil
}
