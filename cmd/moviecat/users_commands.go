package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gurre/moviecat/account"
	"github.com/gurre/moviecat/model"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Register and authenticate users",
	}

	usersCmd.AddCommand(newUsersRegisterCommand(ctx))
	usersCmd.AddCommand(newUsersLoginCommand(ctx))

	return usersCmd
}

func newUsersRegisterCommand(ctx *commandContext) *cobra.Command {
	var reg model.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccounts(func(svc *account.Service) error {
				u, err := svc.Register(cmd.Context(), reg)
				if err != nil {
					return err
				}
				if ctx.jsonFlag {
					return writeJSON(cmd, u)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s with user id %d\n", u.Username, u.UserID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reg.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&reg.Username, "username", "", "Login name")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Password")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "Last name")
	return cmd
}

func newUsersLoginCommand(ctx *commandContext) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check a username and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccounts(func(svc *account.Service) error {
				id, err := svc.Authenticate(cmd.Context(), username, password)
				if err != nil {
					return err
				}
				if ctx.jsonFlag {
					return writeJSON(cmd, id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Authenticated %s (user id %d)\n", id.Username, id.UserID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}
