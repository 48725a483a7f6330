package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <department>",
		Short: "Show open and done counts for a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Dashboard.Collect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(stats.Department))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTION\tTOTAL\tOPEN\tDONE\tDONE TODAY")
			fmt.Fprintf(w, "tasks\t%d\t%d\t%d\t%d\n", stats.Tasks.Total, stats.Tasks.Open, stats.Tasks.Done, stats.Tasks.DoneToday)
			fmt.Fprintf(w, "meldungen\t%d\t%d\t%d\t%d\n", stats.Reports.Total, stats.Reports.Open, stats.Reports.Done, stats.Reports.DoneToday)
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out, subtleStyle.Render(fmt.Sprintf("%d template(s), %d open recurring, %d archived today",
				stats.Templates, stats.RecurringOpen, stats.ArchivedToday)))
			return nil
		},
	}
}
