package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gurre/moviecat/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var principal, accountID string

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check that a principal may call every action moviecat needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if principal == "" {
				principal = cfg.PrincipalARN
			}
			if accountID == "" {
				accountID = cfg.AccountID
			}
			cl, err := ctx.awsClients(cmd.Context())
			if err != nil {
				return err
			}

			res, err := preflight.Run(cmd.Context(), cl.iam, principal, preflight.Target{
				Region:     cfg.Region,
				AccountID:  accountID,
				Table:      cfg.MoviesTable,
				GenreIndex: cfg.GenreIndex,
				Bucket:     cfg.MediaBucket,
			})
			if err != nil {
				return err
			}

			if ctx.jsonFlag {
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(res.Checks))
				for _, c := range res.Checks {
					rows = append(rows, []string{c.Action, c.Resource, c.Decision})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Action", "Resource", "Decision"}, rows, nil))
			}
			if !res.OK() {
				return errors.New("preflight failed: some actions are denied")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "IAM user or role ARN to check (default: principal_arn)")
	cmd.Flags().StringVar(&accountID, "account", "", "Account id owning the table (default: account_id)")
	return cmd
}
