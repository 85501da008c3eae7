package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gurre/moviecat/catalog"
)

func newCommentsCommand(ctx *commandContext) *cobra.Command {
	commentsCmd := &cobra.Command{
		Use:   "comments",
		Short: "Comment on and rate movies",
	}

	commentsCmd.AddCommand(newCommentsAddCommand(ctx))
	commentsCmd.AddCommand(newCommentsEditCommand(ctx))

	return commentsCmd
}

func newCommentsAddCommand(ctx *commandContext) *cobra.Command {
	var content string
	var rating float64

	cmd := &cobra.Command{
		Use:   "add <movie-id> <movie-name>",
		Short: "Add a comment, optionally with a rating from 0 to 5",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.actingUser()
			if err != nil {
				return err
			}
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}

			in := catalog.NewComment{
				MovieID:   args[0],
				MovieName: args[1],
				Content:   content,
				UserID:    user,
			}
			if cmd.Flags().Changed("rating") {
				in.Rating = &rating
			}
			c, err := svc.AddComment(cmd.Context(), in)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added comment %s\n", c.CommentID)
			return nil
		},
	}

	cmd.Flags().StringVar(&content, "content", "", "Comment text")
	cmd.Flags().Float64Var(&rating, "rating", 0, "Rating from 0 to 5")
	return cmd
}

func newCommentsEditCommand(ctx *commandContext) *cobra.Command {
	var content string

	cmd := &cobra.Command{
		Use:   "edit <movie-id> <movie-name> <comment-id>",
		Short: "Replace the text of a comment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.catalogService(cmd.Context())
			if err != nil {
				return err
			}
			c, err := svc.EditComment(cmd.Context(), args[0], args[1], args[2], content)
			if err != nil {
				return err
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated comment %s\n", c.CommentID)
			return nil
		},
	}

	cmd.Flags().StringVar(&content, "content", "", "New comment text")
	return cmd
}
