package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gurre/moviecat/checkpoint"
	"github.com/gurre/moviecat/importer"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var checkpointURI, reportURI string
	var workers, batchSize int

	cmd := &cobra.Command{
		Use:   "import <s3://bucket/prefix>",
		Short: "Bulk-load JSON-lines movie files from S3",
		Long: "Bulk-load every .jsonl or .json object under an S3 prefix. Each line is a movie " +
			"in the catalog's JSON shape or a DynamoDB table export line. Interrupted imports " +
			"resume from the checkpoint.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if cmd.Flags().Changed("checkpoint") {
				cfg.CheckpointURI = checkpointURI
			}
			if cmd.Flags().Changed("report") {
				cfg.ReportURI = reportURI
			}
			if cmd.Flags().Changed("workers") {
				cfg.ImportWorkers = workers
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.ImportBatchSize = batchSize
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cl, err := ctx.awsClients(runCtx)
			if err != nil {
				return err
			}
			store, err := ctx.movieStore(runCtx)
			if err != nil {
				return err
			}
			ckpt, err := checkpoint.Open(cl.s3, cfg.CheckpointURI)
			if err != nil {
				return fmt.Errorf("failed to create checkpoint store: %w", err)
			}

			im := importer.New(cl.s3, cl.streamer, importer.NewJSONDecoder(), store, ckpt, importer.Options{
				Workers:   cfg.ImportWorkers,
				BatchSize: cfg.ImportBatchSize,
				ReportURI: cfg.ReportURI,
			}, ctx.logger)

			report, runErr := im.Run(runCtx, args[0])
			if ctx.jsonFlag {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else if runErr == nil || report.LinesRead > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), report.String())
			}
			if runErr != nil {
				return fmt.Errorf("import failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&checkpointURI, "checkpoint", "", "Checkpoint location: s3://bucket/key or a local path")
	cmd.Flags().StringVar(&reportURI, "report", "", "S3 URI for the JSON report")
	cmd.Flags().IntVar(&workers, "workers", 0, "Files imported concurrently")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Movies per batch write (max 25)")
	return cmd
}
