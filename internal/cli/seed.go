package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSeedCmd(open opener) *cobra.Command {
	var (
		reset      bool
		department string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill departments with demo reports, tasks and templates",
		Long:  `Seed writes demo data into empty collections. With --reset existing collections are replaced.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.Seeder.All(cmd.Context(), departments(a, department), reset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Seeded departments"))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DEPARTMENT\tTASKS\tREPORTS\tTEMPLATES")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Department, s.Tasks, s.Reports, s.Templates)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "replace existing collections")
	cmd.Flags().StringVar(&department, "department", "", "seed only this department")
	return cmd
}
