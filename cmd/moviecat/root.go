package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "moviecat",
		Short:         "Movie catalog on DynamoDB and S3",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.regionFlag, "region", "", "AWS region")
	flags.StringVar(&ctx.tableFlag, "table", "", "DynamoDB movies table")
	flags.StringVar(&ctx.bucketFlag, "bucket", "", "S3 media bucket")
	flags.StringVar(&ctx.endpointFlag, "endpoint", "", "Custom AWS endpoint URL (LocalStack, DynamoDB Local)")
	flags.StringVar(&ctx.userFlag, "user", "", "Acting user recorded on new movies and comments")
	flags.BoolVar(&ctx.jsonFlag, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newMoviesCommand(ctx))
	rootCmd.AddCommand(newCommentsCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))
	rootCmd.AddCommand(newPreflightCommand(ctx))

	return rootCmd
}
