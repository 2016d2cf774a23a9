package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/retail-analytics/rfm-segments/pkg/segment"
)

var cohortsCmd = &cobra.Command{
	Use:   "cohorts",
	Short: "List and validate the configured cohort definitions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		defs, err := cfg.CohortDefinitions()
		if err != nil {
			return err
		}
		set, err := segment.Compile(defs)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tEXPRESSION")
		for _, d := range set.Definitions() {
			fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Expr)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(cohortsCmd)
}
