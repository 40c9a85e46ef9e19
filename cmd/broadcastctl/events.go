package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"brigade/internal/broadcast/models"
	"brigade/internal/broadcast/taxonomy"
)

func newEventsCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List known event types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, models.CategoryID(category))
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list events of this category")
	return cmd
}

func runEvents(cmd *cobra.Command, category models.CategoryID) error {
	registry := taxonomy.Standard()
	if category != "" {
		if _, ok := registry.Category(category); !ok {
			return fmt.Errorf("unknown category %q", category)
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCATEGORY\tCHANNELS\tAUDIENCE")
	for _, c := range registry.Categories() {
		if category != "" && c.ID != category {
			continue
		}
		for _, def := range registry.ModuleEvents(c.ID) {
			channels := make([]string, 0, len(def.DefaultChannels))
			for _, ch := range def.DefaultChannels {
				channels = append(channels, string(ch))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", def.ID, c.ID, strings.Join(channels, ","), def.DefaultAudience)
		}
	}
	return w.Flush()
}

func newDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the default broadcast config as YAML",
		Long:  "Print the rule every event falls back to when an organization has no override.",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(taxonomy.Standard().DefaultBroadcastConfig()); err != nil {
				return fmt.Errorf("encoding defaults: %w", err)
			}
			return enc.Close()
		},
	}
}
