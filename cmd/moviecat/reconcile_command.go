package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find media files without a movie and movies without a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.Reconcile(cmd.Context(), apply)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			if len(report.OrphanedMedia) == 0 && len(report.MissingMedia) == 0 {
				fmt.Fprintln(out, "Movies and media agree")
				return nil
			}
			var rows [][]string
			deleted := make(map[string]bool, len(report.Deleted))
			for _, id := range report.Deleted {
				deleted[id] = true
			}
			for _, id := range report.OrphanedMedia {
				rows = append(rows, []string{"orphaned media", id, "", yesNo(deleted[id])})
			}
			for _, k := range report.MissingMedia {
				rows = append(rows, []string{"missing media", k.MovieID, k.MovieName, "no"})
			}
			fmt.Fprint(out, renderTable([]string{"Problem", "Movie ID", "Movie Name", "Fixed"}, rows, nil))
			if !apply && len(report.OrphanedMedia) > 0 {
				fmt.Fprintln(out, "Run with --apply to delete orphaned media")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Delete orphaned media files")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
