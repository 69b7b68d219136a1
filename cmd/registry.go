package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/voxmetrics/sentinel/internal/model"
	"github.com/voxmetrics/sentinel/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the provider model registry",
}

var registryDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List every model known to the registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries := registry.Discover()
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		formatRegistry(os.Stdout, entries)
		return nil
	},
}

var registryDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the registry against a runtime provider config",
	RunE: func(cmd *cobra.Command, _ []string) error {
		runtimePath, _ := cmd.Flags().GetString("runtime")

		var runtime []model.RuntimeProvider
		if runtimePath != "" {
			loaded, err := registry.LoadRuntime(runtimePath)
			if err != nil {
				return err
			}
			runtime = loaded
		} else {
			runtime = cfg.Providers
		}
		if len(runtime) == 0 {
			return eris.New("no runtime providers configured (pass --runtime or set providers in config)")
		}

		diff := registry.DiffRuntime(registry.Discover(), runtime)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	},
}

func init() {
	registryDiscoverCmd.Flags().Bool("json", false, "emit JSON instead of a table")
	registryDiffCmd.Flags().String("runtime", "", "runtime provider YAML (default: providers from config)")

	registryCmd.AddCommand(registryDiscoverCmd)
	registryCmd.AddCommand(registryDiffCmd)
	rootCmd.AddCommand(registryCmd)
}

// formatRegistry writes a tabular model listing to w.
func formatRegistry(out io.Writer, entries []model.RegistryEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tMODEL\tSTATUS\tTOOLS\tSEARCH\tCONTEXT\tCOST/1K")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%d\t$%.4f\n",
			e.Provider,
			e.Model,
			e.Status,
			e.Capabilities.Tools,
			e.Capabilities.SearchAugmented,
			e.Capabilities.MaxContext,
			e.Capabilities.CostPer1KTokens,
		)
	}
	_ = w.Flush()
}
