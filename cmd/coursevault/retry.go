package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coursevault/pkg/checkpoint"
	"coursevault/pkg/logger"
)

var retryCourseID string

// retryCmd flips failed units back to pending
var retryCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Mark failed units for re-download on the next run",
	Long: `Flip every failed unit back to pending so the next download run
re-processes it. Failed courses return to in-progress. Use --course to
limit the reset to one course.

The ledger is backed up before it is modified.`,
	Args: cobra.NoArgs,
	RunE: runRetryFailed,
}

func init() {
	rootCmd.AddCommand(retryCmd)
	retryCmd.Flags().StringVar(&retryCourseID, "course", "", "only retry failures of this course id")
}

func runRetryFailed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	store := checkpoint.NewStore(cfg.Output.CheckpointPath, logger.GetLogger())
	if err := store.Backup(); err != nil {
		return err
	}

	flipped := store.RetryFailed(retryCourseID)
	if flipped == 0 {
		fmt.Println("No failed units to retry")
		return nil
	}
	fmt.Printf("%d unit(s) marked for retry; run 'coursevault download' to re-process them\n", flipped)
	return nil
}
