package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/models"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the category pages and their detector endpoints",
	Args:  cobra.NoArgs,
	RunE:  listCategories,
}

type categoryRow struct {
	models.CategoryInfo
	Endpoints []analysis.Endpoint `json:"endpoints"`
}

func listCategories(cmd *cobra.Command, args []string) error {
	rows := make([]categoryRow, 0, len(models.Categories))
	for _, info := range models.Categories {
		row := categoryRow{CategoryInfo: info}
		for _, ep := range analysis.Endpoints {
			if ep.Category == info.Category {
				row.Endpoints = append(row.Endpoints, ep)
			}
		}
		rows = append(rows, row)
	}

	if outputFormat == "json" {
		return printJSON(cmd.OutOrStdout(), rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTITLE\tENDPOINT\tPATH")
	for _, row := range rows {
		for _, ep := range row.Endpoints {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Category, row.Title, ep.Name, ep.Path)
		}
	}
	return tw.Flush()
}
