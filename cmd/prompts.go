package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect the prompt catalog",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog prompts at their active versions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("prompts")
		cat, err := loadCatalog(path)
		if err != nil {
			return err
		}

		prompts := cat.List()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(prompts)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PROMPT\tVERSION\tSAFETY\tTEXT")
		for _, p := range prompts {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				p.PromptID, p.Version, strings.Join(p.SafetyTags, ","), truncateText(p.Text, 60))
		}
		return w.Flush()
	},
}

func init() {
	promptsListCmd.Flags().String("prompts", "", "path to a prompt catalog YAML file")
	promptsListCmd.Flags().Bool("json", false, "emit JSON instead of a table")

	promptsCmd.AddCommand(promptsListCmd)
	rootCmd.AddCommand(promptsCmd)
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
