package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coursevault/pkg/checkpoint"
	"coursevault/pkg/logger"
)

// resetCmd forces one course back to a fresh state
var resetCmd = &cobra.Command{
	Use:   "reset-course <course-id>",
	Short: "Reset a course so the next run re-downloads it",
	Long: `Force a course back to in-progress with every unit pending, rolling its
contributions out of the aggregate counters. The next download run
re-processes the whole course.

The ledger is backed up before it is modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runResetCourse,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runResetCourse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	store := checkpoint.NewStore(cfg.Output.CheckpointPath, logger.GetLogger())
	if err := store.Backup(); err != nil {
		return err
	}

	if !store.ResetCourse(args[0]) {
		return fmt.Errorf("course %q is not in the ledger", args[0])
	}
	fmt.Printf("Course %s reset; run 'coursevault download' to re-archive it\n", args[0])
	return nil
}
