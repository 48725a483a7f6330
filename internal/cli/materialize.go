package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Cembrun/Checkbell-V2/internal/recurring"
)

func newMaterializeCmd(open opener) *cobra.Command {
	var (
		force      bool
		department string
	)

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Create the recurring task instances that are due",
		Long:  `Materialize runs the recurring engine once. --force ignores lead time and cooldown; an instance is still created at most once per template and day.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			total := 0
			for _, dep := range departments(a, department) {
				n, err := a.Materializer.Materialize(cmd.Context(), dep, recurring.Options{Force: force})
				if err != nil {
					return fmt.Errorf("%s: %w", dep, err)
				}
				fmt.Fprintf(out, "%s %s\n", dep, subtleStyle.Render(fmt.Sprintf("%d created", n)))
				total += n
			}

			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("%d instance(s) created", total)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "ignore lead time and cooldown")
	cmd.Flags().StringVar(&department, "department", "", "materialize only this department")
	return cmd
}
