package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Cembrun/Checkbell-V2/internal/seed"
)

func newTemplatesCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List and import recurring templates",
	}

	cmd.AddCommand(newTemplatesListCmd(open), newTemplatesImportCmd(open))
	return cmd
}

func newTemplatesListCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list <department>",
		Short: "List a department's templates, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Templates.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, subtleStyle.Render("No templates."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tTIME\tRECURRENCE\tDUE\tLEAD\tCOOLDOWN")
			for _, t := range list {
				due := t.DueDate
				if due == "" {
					due = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dm\t%dh\n",
					t.ID, t.Title, t.TimeOfDay, t.Recurrence, due, t.LeadMinutes, t.CooldownHours)
			}
			return w.Flush()
		},
	}
}

func newTemplatesImportCmd(open opener) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import templates from a YAML file",
		Long:  `Import reads a YAML file with a templates map keyed by department. The whole file is validated before anything is written.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := seed.LoadTemplates(args[0])
			if err != nil {
				return err
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := seed.Import(cmd.Context(), a.Templates, file, replace)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Imported %d template(s)", n)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "drop existing templates of the imported departments")
	return cmd
}
